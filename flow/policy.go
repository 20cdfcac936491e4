package flow

import "fmt"

// Priority classifies an inquiry's urgency. Reservation sessions carry no
// priority.
type Priority string

const (
	PriorityNone   Priority = ""
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var priorityRank = map[Priority]int{
	PriorityNone: 0, PriorityLow: 1, PriorityMedium: 2, PriorityHigh: 3, PriorityUrgent: 4,
}

// Rank orders priorities so lock-in can keep the highest seen so far.
func (p Priority) Rank() int { return priorityRank[p] }

// AtLeast reports whether p ranks at or above other.
func (p Priority) AtLeast(other Priority) bool { return p.Rank() >= other.Rank() }

// Policy supplies everything flow-specific the dialogue state machine needs:
// the ordered slot schema, priority assessment, the completion/escalation
// rule and the spoken prompts that frame the conversation.
type Policy interface {
	Flow() Type

	// Slots returns the declared slot order. Required slots are asked for
	// in this order; optional slots are only captured opportunistically.
	Slots() []Slot

	// Slot looks up a slot definition by name.
	Slot(name string) (Slot, bool)

	// Greeting opens the conversation on the first turn.
	Greeting() string

	// Summary reads the collected slots back to the caller for explicit
	// confirmation.
	Summary(filled map[string]string) string

	// CompletionPrompt closes a confirmed conversation.
	CompletionPrompt(filled map[string]string) string

	// EscalationPrompt is spoken when the session hands off to a human.
	EscalationPrompt() string

	// AbandonPrompt is spoken when the session gives up gracefully.
	AbandonPrompt() string

	// AssessPriority folds an utterance into the session priority. The
	// result never ranks below current: once urgent, always urgent.
	AssessPriority(utterance string, current Priority) Priority

	// Escalates reports whether a confirmed session at the given priority
	// finalizes as an escalation instead of a completion.
	Escalates(p Priority) bool

	// Validate checks the policy for misconfiguration. A broken policy is
	// the one fatal error class: it must fail at startup, never
	// mid-conversation.
	Validate() error
}

// ValidatePolicy performs the structural checks shared by all policies.
func ValidatePolicy(p Policy) error {
	slots := p.Slots()
	if len(slots) == 0 {
		return fmt.Errorf("policy %s: no slots declared", p.Flow())
	}
	required := 0
	seen := make(map[string]bool, len(slots))
	for _, s := range slots {
		if s.Name == "" {
			return fmt.Errorf("policy %s: slot with empty name", p.Flow())
		}
		if seen[s.Name] {
			return fmt.Errorf("policy %s: duplicate slot %q", p.Flow(), s.Name)
		}
		seen[s.Name] = true
		if s.Validate == nil {
			return fmt.Errorf("policy %s: slot %q has no validator", p.Flow(), s.Name)
		}
		if s.Prompt == "" {
			return fmt.Errorf("policy %s: slot %q has no prompt", p.Flow(), s.Name)
		}
		if s.Required {
			required++
		}
	}
	if required == 0 {
		return fmt.Errorf("policy %s: no required slots, completion rule is undefined", p.Flow())
	}
	if p.Greeting() == "" {
		return fmt.Errorf("policy %s: no greeting", p.Flow())
	}
	return nil
}

func slotByName(slots []Slot, name string) (Slot, bool) {
	for _, s := range slots {
		if s.Name == name {
			return s, true
		}
	}
	return Slot{}, false
}
