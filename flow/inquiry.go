package flow

import (
	"fmt"
	"strings"
)

// Keyword ladders for priority detection. An urgent phrase anywhere in the
// call locks the session at urgent, no matter what the caller says later.
var (
	urgentKeywords = []string{"fraud", "stolen", "unauthorized", "locked", "emergency", "hack"}
	highKeywords   = []string{"payment", "due", "deadline", "billing", "dispute", "cannot access", "can't access", "urgent"}
)

// DetectPriority scans an utterance for urgency keywords.
func DetectPriority(utterance string) Priority {
	text := strings.ToLower(utterance)
	for _, kw := range urgentKeywords {
		if strings.Contains(text, kw) {
			return PriorityUrgent
		}
	}
	for _, kw := range highKeywords {
		if strings.Contains(text, kw) {
			return PriorityHigh
		}
	}
	return PriorityMedium
}

// InquiryPolicy collects an after-hours service inquiry so staff can follow
// up: who called, how to reach them, and why. Inquiries at or above the
// escalation threshold finalize as escalations and page the on-call staff.
type InquiryPolicy struct {
	business   string
	escalateAt Priority
	slots      []Slot
}

// NewInquiryPolicy builds the inquiry intake flow. escalateAt sets the
// priority at which a confirmed inquiry escalates instead of completing;
// PriorityUrgent is the conventional threshold.
func NewInquiryPolicy(business string, escalateAt Priority) *InquiryPolicy {
	return &InquiryPolicy{
		business:   business,
		escalateAt: escalateAt,
		slots: []Slot{
			{
				Name: "name", Type: SlotString, Required: true,
				Prompt:   "First, could you tell me your full name?",
				Validate: ValidateName,
			},
			{
				Name: "phone", Type: SlotString, Required: true,
				Prompt:   "Thank you! And what's the best phone number for our team to reach you at?",
				Validate: ValidatePhone,
			},
			{
				Name: "reason", Type: SlotString, Required: true,
				Prompt:   "Could you briefly tell me what you're calling about today?",
				Validate: FreeTextValidator("reason", 4),
			},
			{
				Name: "email", Type: SlotString, Required: false,
				Prompt:   "Would you also like to leave an email address for follow-up?",
				Validate: ValidateEmail,
			},
			{
				Name: "member_number", Type: SlotString, Required: false,
				Prompt:   "If you have your member number handy, I can note it down.",
				Validate: FreeTextValidator("member_number", 3),
			},
		},
	}
}

func (p *InquiryPolicy) Flow() Type    { return Inquiry }
func (p *InquiryPolicy) Slots() []Slot { return p.slots }

func (p *InquiryPolicy) Slot(name string) (Slot, bool) { return slotByName(p.slots, name) }

func (p *InquiryPolicy) Greeting() string {
	return fmt.Sprintf("Thank you for calling %s. Our offices are currently closed, but I can take your information so our team can assist you first thing tomorrow. This will just take a moment.", p.business)
}

func (p *InquiryPolicy) Summary(filled map[string]string) string {
	s := fmt.Sprintf("Let me make sure I have this right: %s, reachable at %s, calling about: %s.",
		filled["name"], filled["phone"], filled["reason"])
	if email := filled["email"]; email != "" {
		s += fmt.Sprintf(" Follow-up email %s.", email)
	}
	return s + " Did I get that right?"
}

func (p *InquiryPolicy) CompletionPrompt(filled map[string]string) string {
	return fmt.Sprintf("Thank you, %s! I've recorded your information and our team will contact you within 24 hours. Have a great day!", filled["name"])
}

func (p *InquiryPolicy) EscalationPrompt() string {
	return "I've flagged this as urgent and notified our on-call team. Someone will reach out to you as soon as possible."
}

func (p *InquiryPolicy) AbandonPrompt() string {
	return fmt.Sprintf("I'm sorry I couldn't take down your information. Please call %s back during business hours and our team will be happy to assist you. Goodbye!", p.business)
}

// AssessPriority folds the utterance into the locked-in session priority:
// the result never ranks below what was already detected.
func (p *InquiryPolicy) AssessPriority(utterance string, current Priority) Priority {
	detected := DetectPriority(utterance)
	if detected.Rank() > current.Rank() {
		return detected
	}
	if current == PriorityNone {
		return PriorityMedium
	}
	return current
}

// Escalates reports whether the locked priority meets the escalation
// threshold.
func (p *InquiryPolicy) Escalates(pr Priority) bool {
	return pr.AtLeast(p.escalateAt)
}

func (p *InquiryPolicy) Validate() error {
	if p.escalateAt == PriorityNone {
		return fmt.Errorf("policy %s: no escalation threshold configured", p.Flow())
	}
	return ValidatePolicy(p)
}
