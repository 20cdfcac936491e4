package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/room4-2/OpenDialog/flow"
	"github.com/room4-2/OpenDialog/session"
)

func TestNewFallbackRejectsBadConfig(t *testing.T) {
	_, err := NewFallback(FallbackConfig{FailureThreshold: 0, UnavailableLimit: 3})
	assert.Error(t, err)

	_, err = NewFallback(FallbackConfig{FailureThreshold: 3, UnavailableLimit: 0})
	assert.Error(t, err)

	_, err = NewFallback(FallbackConfig{FailureThreshold: 3, UnavailableLimit: 3, TurnCeiling: -1})
	assert.Error(t, err)
}

func TestFallbackDecide(t *testing.T) {
	fb, err := NewFallback(DefaultFallbackConfig())
	require.NoError(t, err)

	s := session.New("CA1", flow.Reservation, time.Now())
	assert.Equal(t, Continue, fb.Decide(s))

	// Below the line is still fine.
	s.ConsecutiveFailures = 2
	assert.Equal(t, Continue, fb.Decide(s))

	// At the threshold, the action depends on the flow.
	s.ConsecutiveFailures = 3
	assert.Equal(t, ForceAbandon, fb.Decide(s))

	inq := session.New("CA2", flow.Inquiry, time.Now())
	inq.ConsecutiveFailures = 3
	assert.Equal(t, ForceEscalate, fb.Decide(inq))
}

func TestFallbackUnavailableEscalatesAnyFlow(t *testing.T) {
	fb, err := NewFallback(DefaultFallbackConfig())
	require.NoError(t, err)

	s := session.New("CA1", flow.Reservation, time.Now())
	s.UnavailableCount = 3
	assert.Equal(t, ForceEscalate, fb.Decide(s))

	// Outages outrank the failure action even when both lines are crossed.
	s.ConsecutiveFailures = 5
	assert.Equal(t, ForceEscalate, fb.Decide(s))
}

func TestFallbackTurnCeiling(t *testing.T) {
	cfg := DefaultFallbackConfig()
	cfg.TurnCeiling = 10
	fb, err := NewFallback(cfg)
	require.NoError(t, err)

	s := session.New("CA1", flow.Inquiry, time.Now())
	s.TurnCount = 9
	assert.Equal(t, Continue, fb.Decide(s))
	s.TurnCount = 10
	assert.Equal(t, ForceAbandon, fb.Decide(s))

	// Ceiling 0 disables the cap.
	cfg.TurnCeiling = 0
	fb, err = NewFallback(cfg)
	require.NoError(t, err)
	s.TurnCount = 1000
	assert.Equal(t, Continue, fb.Decide(s))
}

func TestFallbackUnknownFlowDefaultsToAbandon(t *testing.T) {
	cfg := DefaultFallbackConfig()
	cfg.FailureAction = nil
	fb, err := NewFallback(cfg)
	require.NoError(t, err)

	s := session.New("CA1", flow.Reservation, time.Now())
	s.ConsecutiveFailures = 3
	assert.Equal(t, ForceAbandon, fb.Decide(s))
}
