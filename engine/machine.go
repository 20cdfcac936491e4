package engine

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/room4-2/OpenDialog/classify"
	"github.com/room4-2/OpenDialog/flow"
	"github.com/room4-2/OpenDialog/session"
)

// step runs the per-turn algorithm for one utterance: classify, validate
// candidates into slots, pick the next state, and return the prompt. It
// mutates sess; persisting the mutation is the caller's job.
func (e *Engine) step(ctx context.Context, sess *session.Session, policy flow.Policy, utterance string) string {
	// Silence counts as a turn that captured nothing.
	if strings.TrimSpace(utterance) == "" {
		sess.ConsecutiveFailures++
		if pending, ok := flow.NextUnfilled(policy.Slots(), sess.Slots); ok {
			return promptSilencePrefix + pending.Prompt
		}
		return promptSilencePrefix + policy.Summary(sess.Slots)
	}

	// Priority locks in from the raw utterance so an urgent phrase is
	// never lost to a classifier outage on the same turn.
	sess.Priority = policy.AssessPriority(utterance, sess.Priority)

	pending, hasPending := flow.NextUnfilled(policy.Slots(), sess.Slots)
	hint := ""
	if hasPending {
		hint = pending.Name
	}

	res, err := e.classifier.Classify(ctx, utterance, sess.Flow, hint)
	switch {
	case errors.Is(err, classify.ErrUnavailable):
		sess.UnavailableCount++
		log.Printf("⚠️ [%s] classifier unavailable (%d so far): %v", shortID(sess.CallID), sess.UnavailableCount, err)
		return promptUnavailable
	case errors.Is(err, classify.ErrLowConfidence):
		sess.ConsecutiveFailures++
		if hasPending {
			return promptLowConfidencePrefix + pending.Prompt
		}
		return promptLowConfidencePrefix + policy.Summary(sess.Slots)
	case err != nil:
		// Anything unexpected from the provider boundary is an outage.
		sess.UnavailableCount++
		log.Printf("❌ [%s] classifier error: %v", shortID(sess.CallID), err)
		return promptUnavailable
	}

	if res.Intent == classify.IntentCancel {
		e.terminate(sess, session.StateAbandoned, &session.TerminalResult{
			Kind:   session.ResultAbandoned,
			Reason: "caller disengaged",
		})
		return policy.AbandonPrompt()
	}

	if sess.State == session.StateConfirming {
		switch res.Intent {
		case classify.IntentAffirm:
			return e.finalizeConfirmed(sess, policy)
		case classify.IntentDeny:
			cleared := e.clearForCorrection(sess, policy, res.Fields)
			sess.State = session.StateCollecting
			sess.ConsecutiveFailures = 0
			if slot, ok := policy.Slot(cleared); ok {
				return "My mistake, let's fix that. " + slot.Prompt
			}
			if pending, ok := flow.NextUnfilled(policy.Slots(), sess.Slots); ok {
				return "My mistake, let's fix that. " + pending.Prompt
			}
			return policy.Summary(sess.Slots)
		}
	}

	captured, rejection := e.applyFields(sess, policy, res)
	if captured > 0 {
		sess.ConsecutiveFailures = 0
	}

	// All required slots present: read everything back for an explicit
	// yes/no before finalizing.
	transitioned := false
	if sess.State == session.StateCollecting && flow.AllRequiredFilled(policy.Slots(), sess.Slots) {
		sess.State = session.StateConfirming
		transitioned = true
	}
	if captured == 0 && !transitioned {
		sess.ConsecutiveFailures++
	}

	if sess.State == session.StateConfirming {
		return policy.Summary(sess.Slots)
	}

	next, ok := flow.NextUnfilled(policy.Slots(), sess.Slots)
	if !ok {
		// Unreachable when collecting, but never leave the caller hanging.
		return policy.Summary(sess.Slots)
	}
	return askFor(next, rejection)
}

// applyFields validates each candidate field against its slot, in the
// policy's declared order (last write wins within the turn). Filled slots
// are only overwritten on an explicit correction intent.
func (e *Engine) applyFields(sess *session.Session, policy flow.Policy, res *classify.Result) (int, *flow.ValidationError) {
	correction := res.Intent == classify.IntentCorrection
	captured := 0
	var rejection *flow.ValidationError

	for _, slot := range policy.Slots() {
		raw, ok := res.Fields[slot.Name]
		if !ok {
			continue
		}
		if _, filled := sess.Slots[slot.Name]; filled && !correction {
			continue
		}

		value, err := slot.Validate(raw)
		if err != nil {
			var verr *flow.ValidationError
			if !errors.As(err, &verr) {
				verr = &flow.ValidationError{Slot: slot.Name, Reason: flow.ReasonMalformed, Detail: "I couldn't make that out"}
			}
			log.Printf("🔁 [%s] slot %s rejected: %s", shortID(sess.CallID), slot.Name, verr.Reason)
			rejection = verr
			continue
		}
		sess.Slots[slot.Name] = value
		captured++
	}
	return captured, rejection
}

// finalizeConfirmed applies the policy's completion rule after an explicit
// affirmative: escalate when the locked priority demands it, complete
// otherwise.
func (e *Engine) finalizeConfirmed(sess *session.Session, policy flow.Policy) string {
	fields := make(map[string]string, len(sess.Slots))
	for k, v := range sess.Slots {
		fields[k] = v
	}
	ticket := uuid.New().String()

	if policy.Escalates(sess.Priority) {
		e.terminate(sess, session.StateEscalated, &session.TerminalResult{
			Kind:     session.ResultEscalation,
			TicketID: ticket,
			Fields:   fields,
			Priority: sess.Priority,
			Reason:   "priority threshold",
		})
		return policy.EscalationPrompt()
	}

	kind := session.ResultReservation
	if sess.Flow == flow.Inquiry {
		kind = session.ResultInquiry
	}
	e.terminate(sess, session.StateCompleted, &session.TerminalResult{
		Kind:     kind,
		TicketID: ticket,
		Fields:   fields,
		Priority: sess.Priority,
	})
	return policy.CompletionPrompt(sess.Slots)
}

// clearForCorrection removes the slot the caller says is wrong: the one
// named in the classified fields if any, otherwise the last filled slot in
// declared order. Returns the cleared slot name.
func (e *Engine) clearForCorrection(sess *session.Session, policy flow.Policy, fields map[string]string) string {
	for _, slot := range policy.Slots() {
		if _, named := fields[slot.Name]; !named {
			continue
		}
		if _, filled := sess.Slots[slot.Name]; filled {
			delete(sess.Slots, slot.Name)
			return slot.Name
		}
	}
	slots := policy.Slots()
	for i := len(slots) - 1; i >= 0; i-- {
		if _, filled := sess.Slots[slots[i].Name]; filled {
			delete(sess.Slots, slots[i].Name)
			return slots[i].Name
		}
	}
	return ""
}

// terminate moves the session into a terminal state with its finalized
// payload. After this, every further turn replays the cached prompt.
func (e *Engine) terminate(sess *session.Session, state session.State, result *session.TerminalResult) {
	sess.State = state
	sess.Terminal = result
	log.Printf("🏁 [%s] session terminal: %s (%s)", shortID(sess.CallID), state, result.Kind)
}

// force applies a fallback controller override.
func (e *Engine) force(sess *session.Session, policy flow.Policy, d Decision) string {
	fields := make(map[string]string, len(sess.Slots))
	for k, v := range sess.Slots {
		fields[k] = v
	}
	switch d {
	case ForceEscalate:
		e.terminate(sess, session.StateEscalated, &session.TerminalResult{
			Kind:     session.ResultEscalation,
			TicketID: uuid.New().String(),
			Fields:   fields,
			Priority: sess.Priority,
			Reason:   "fallback: " + d.String(),
		})
		return policy.EscalationPrompt()
	default:
		e.terminate(sess, session.StateAbandoned, &session.TerminalResult{
			Kind:   session.ResultAbandoned,
			Fields: fields,
			Reason: "fallback: " + d.String(),
		})
		return policy.AbandonPrompt()
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
