package session

import (
	"time"

	"github.com/bytedance/sonic"

	"github.com/room4-2/OpenDialog/flow"
)

// State labels where the conversation stands.
type State string

const (
	StateCollecting State = "COLLECTING"
	StateConfirming State = "CONFIRMING"
	StateCompleted  State = "COMPLETED"
	StateEscalated  State = "ESCALATED"
	StateAbandoned  State = "ABANDONED"
)

// Terminal reports whether the state accepts no further mutating turns.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateEscalated, StateAbandoned:
		return true
	}
	return false
}

// Result kinds stored in TerminalResult.
const (
	ResultReservation = "reservation"
	ResultInquiry     = "inquiry"
	ResultEscalation  = "escalation"
	ResultAbandoned   = "abandoned"
)

// TerminalResult is the finalized payload of a terminal session: the
// completed reservation or inquiry, or the escalation/abandonment record.
type TerminalResult struct {
	Kind     string            `json:"kind"`
	TicketID string            `json:"ticket_id,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
	Priority flow.Priority     `json:"priority,omitempty"`
	Reason   string            `json:"reason,omitempty"`
}

// Session is the persisted state of one call's conversation across turns.
// It is mutated once per turn under the store's per-call critical section
// and carries a version for optimistic concurrency across instances.
type Session struct {
	CallID string    `json:"call_id"`
	Flow   flow.Type `json:"flow"`
	State  State     `json:"state"`

	// Slots holds only values that passed their validator.
	Slots    map[string]string `json:"slots,omitempty"`
	Priority flow.Priority     `json:"priority,omitempty"`

	TurnCount           int `json:"turn_count"`
	ConsecutiveFailures int `json:"consecutive_failures"`
	UnavailableCount    int `json:"unavailable_count"`

	// LastToken/LastPrompt cache the previous turn so duplicate webhook
	// deliveries replay the identical response without re-applying writes.
	LastToken  string `json:"last_token,omitempty"`
	LastPrompt string `json:"last_prompt,omitempty"`

	Terminal *TerminalResult `json:"terminal_result,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Version is 0 until first saved; every successful Save increments it.
	Version int64 `json:"version"`
}

// New creates a fresh session in the initial collecting state.
func New(callID string, f flow.Type, now time.Time) *Session {
	return &Session{
		CallID:    callID,
		Flow:      f,
		State:     StateCollecting,
		Slots:     make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsTerminal reports whether the session reached a terminal state.
func (s *Session) IsTerminal() bool { return s.State.Terminal() }

// Clone returns a deep copy so stores never hand out aliased state.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Slots = make(map[string]string, len(s.Slots))
	for k, v := range s.Slots {
		cp.Slots[k] = v
	}
	if s.Terminal != nil {
		tr := *s.Terminal
		tr.Fields = make(map[string]string, len(s.Terminal.Fields))
		for k, v := range s.Terminal.Fields {
			tr.Fields[k] = v
		}
		cp.Terminal = &tr
	}
	return &cp
}

// Encode serializes a session for storage.
func Encode(s *Session) ([]byte, error) { return sonic.Marshal(s) }

// Decode deserializes a stored session.
func Decode(data []byte) (*Session, error) {
	var s Session
	if err := sonic.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.Slots == nil {
		s.Slots = make(map[string]string)
	}
	return &s, nil
}
