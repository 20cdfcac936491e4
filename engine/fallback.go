package engine

import (
	"fmt"

	"github.com/room4-2/OpenDialog/flow"
	"github.com/room4-2/OpenDialog/session"
)

// Decision is the fallback controller's verdict for a turn. Anything other
// than Continue overrides whatever the state machine would have done.
type Decision int

const (
	Continue Decision = iota
	ForceEscalate
	ForceAbandon
)

func (d Decision) String() string {
	switch d {
	case ForceEscalate:
		return "force_escalate"
	case ForceAbandon:
		return "force_abandon"
	}
	return "continue"
}

// FallbackConfig bounds how long a struggling conversation may go on.
// Thresholds and the per-flow failure action are configuration, not
// hard-coded behavior.
type FallbackConfig struct {
	// FailureThreshold is the number of consecutive no-capture turns a
	// session may accumulate before the next turn is forced terminal.
	FailureThreshold int
	// FailureAction maps each flow to the forced outcome when the
	// failure threshold is reached.
	FailureAction map[flow.Type]Decision
	// UnavailableLimit is the total number of classifier outages a
	// session tolerates before escalating regardless of flow: that many
	// outages means a systemic dependency failure, not caller confusion.
	UnavailableLimit int
	// TurnCeiling caps total conversation length as a safety net.
	// 0 disables the ceiling.
	TurnCeiling int
}

// DefaultFallbackConfig mirrors the production defaults: three strikes,
// escalate inquiries, abandon reservations (no human fallback channel on the
// reservation line), thirty turns max.
func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{
		FailureThreshold: 3,
		FailureAction: map[flow.Type]Decision{
			flow.Reservation: ForceAbandon,
			flow.Inquiry:     ForceEscalate,
		},
		UnavailableLimit: 3,
		TurnCeiling:      30,
	}
}

// Fallback bounds repeated failure. It is consulted at the start of every
// turn; its decision is final for that turn and caps consecutive_failures
// at the threshold by construction - a session over the line never processes
// another utterance.
type Fallback struct {
	cfg FallbackConfig
}

// NewFallback validates the configuration; a nonsensical fallback policy is
// a startup error, never a mid-conversation surprise.
func NewFallback(cfg FallbackConfig) (*Fallback, error) {
	if cfg.FailureThreshold <= 0 {
		return nil, fmt.Errorf("fallback: failure threshold must be positive, got %d", cfg.FailureThreshold)
	}
	if cfg.UnavailableLimit <= 0 {
		return nil, fmt.Errorf("fallback: unavailable limit must be positive, got %d", cfg.UnavailableLimit)
	}
	if cfg.TurnCeiling < 0 {
		return nil, fmt.Errorf("fallback: turn ceiling must not be negative, got %d", cfg.TurnCeiling)
	}
	return &Fallback{cfg: cfg}, nil
}

// Decide inspects the session's failure counters and returns the forced
// outcome, if any.
func (f *Fallback) Decide(s *session.Session) Decision {
	if s.UnavailableCount >= f.cfg.UnavailableLimit {
		return ForceEscalate
	}
	if s.ConsecutiveFailures >= f.cfg.FailureThreshold {
		if d, ok := f.cfg.FailureAction[s.Flow]; ok {
			return d
		}
		return ForceAbandon
	}
	if f.cfg.TurnCeiling > 0 && s.TurnCount >= f.cfg.TurnCeiling {
		return ForceAbandon
	}
	return Continue
}
