package engine

import (
	"github.com/room4-2/OpenDialog/flow"
	"github.com/room4-2/OpenDialog/session"
)

// ActionKind tags the terminal outcome handed to the transport.
type ActionKind string

const (
	ActionReservationCreated ActionKind = "reservation_created"
	ActionInquiryCreated     ActionKind = "inquiry_created"
	ActionEscalated          ActionKind = "escalated"
	ActionAbandoned          ActionKind = "abandoned"
)

// Action is the terminal outcome of a finished session. The transport
// forwards it to the persistence and notification collaborators; the engine
// itself never does.
type Action struct {
	Kind     ActionKind        `json:"kind"`
	TicketID string            `json:"ticket_id,omitempty"`
	Details  map[string]string `json:"details,omitempty"`
	Priority flow.Priority     `json:"priority,omitempty"`
	Reason   string            `json:"reason,omitempty"`
}

// TurnResponse is what one processed turn hands back to the transport.
type TurnResponse struct {
	// Prompt is spoken/shown to the caller.
	Prompt string
	// Action is non-nil once the session reached a terminal state.
	Action *Action
	// Done mirrors Action != nil; the transport stops gathering input.
	Done bool
}

// actionFromTerminal rebuilds the transport action from the persisted
// terminal result, so replays produce the identical action.
func actionFromTerminal(t *session.TerminalResult) *Action {
	if t == nil {
		return nil
	}
	a := &Action{
		TicketID: t.TicketID,
		Details:  t.Fields,
		Priority: t.Priority,
		Reason:   t.Reason,
	}
	switch t.Kind {
	case session.ResultReservation:
		a.Kind = ActionReservationCreated
	case session.ResultInquiry:
		a.Kind = ActionInquiryCreated
	case session.ResultEscalation:
		a.Kind = ActionEscalated
	default:
		a.Kind = ActionAbandoned
	}
	return a
}
