package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/room4-2/OpenDialog/classify"
	"github.com/room4-2/OpenDialog/flow"
	"github.com/room4-2/OpenDialog/session"
)

var fixedNow = func() time.Time {
	return time.Date(2025, time.March, 10, 15, 0, 0, 0, time.UTC)
}

// scriptedClassifier pops one pre-baked result per Classify call.
type scriptedClassifier struct {
	t      *testing.T
	script []scriptedTurn
	calls  int
}

type scriptedTurn struct {
	res *classify.Result
	err error
}

func (s *scriptedClassifier) Classify(_ context.Context, utterance string, _ flow.Type, _ string) (*classify.Result, error) {
	if s.calls >= len(s.script) {
		s.t.Fatalf("unexpected classifier call %d for %q", s.calls+1, utterance)
	}
	turn := s.script[s.calls]
	s.calls++
	return turn.res, turn.err
}

func provideInfo(fields map[string]string) scriptedTurn {
	return scriptedTurn{res: &classify.Result{Intent: classify.IntentProvideInfo, Fields: fields, Confidence: 0.9}}
}

func intentOnly(intent classify.Intent) scriptedTurn {
	return scriptedTurn{res: &classify.Result{Intent: intent, Fields: map[string]string{}, Confidence: 0.9}}
}

func newTestEngine(t *testing.T, c classify.Classifier, store session.Store) *Engine {
	t.Helper()
	if store == nil {
		store = session.NewMemoryStore()
	}
	policies := []flow.Policy{
		flow.NewReservationPolicy("Bella Vista", fixedNow),
		flow.NewInquiryPolicy("Horizon Credit Union", flow.PriorityUrgent),
	}
	eng, err := New(store, c, policies, DefaultFallbackConfig())
	require.NoError(t, err)
	eng.now = fixedNow
	return eng
}

func TestNewRejectsBadWiring(t *testing.T) {
	c := classify.NewKeywordClassifier(0)
	res := flow.NewReservationPolicy("Bella Vista", fixedNow)

	_, err := New(nil, c, []flow.Policy{res}, DefaultFallbackConfig())
	assert.Error(t, err)

	_, err = New(session.NewMemoryStore(), nil, []flow.Policy{res}, DefaultFallbackConfig())
	assert.Error(t, err)

	_, err = New(session.NewMemoryStore(), c, nil, DefaultFallbackConfig())
	assert.Error(t, err)

	_, err = New(session.NewMemoryStore(), c, []flow.Policy{res, res}, DefaultFallbackConfig())
	assert.Error(t, err, "duplicate flow policies")

	bad := flow.NewInquiryPolicy("Horizon Credit Union", flow.PriorityNone)
	_, err = New(session.NewMemoryStore(), c, []flow.Policy{bad}, DefaultFallbackConfig())
	assert.Error(t, err, "policy validation runs at startup")
}

func TestHandleTurnRequiresFlowHintForNewSession(t *testing.T) {
	eng := newTestEngine(t, classify.NewKeywordClassifier(0), nil)
	_, err := eng.HandleTurn(context.Background(), "CA1", "", "hello", "")
	assert.ErrorIs(t, err, ErrFlowRequired)
}

func TestGreetingTurn(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	// The greeting turn never consults the classifier.
	eng := newTestEngine(t, &scriptedClassifier{t: t}, store)

	resp, err := eng.HandleTurn(ctx, "CA1", flow.Reservation, "", "tok-0")
	require.NoError(t, err)
	assert.Contains(t, resp.Prompt, "Bella Vista")
	assert.False(t, resp.Done)

	sess, err := store.Load(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, session.StateCollecting, sess.State)
	assert.Equal(t, 1, sess.TurnCount)
}

// Full happy path through the real keyword classifier: one multi-slot
// utterance, then name, phone, and an explicit yes.
func TestReservationHappyPath(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	eng := newTestEngine(t, classify.NewKeywordClassifier(0), store)

	resp, err := eng.HandleTurn(ctx, "CA1", flow.Reservation, "", "")
	require.NoError(t, err)
	assert.Contains(t, resp.Prompt, "book a table")

	resp, err = eng.HandleTurn(ctx, "CA1", flow.Reservation, "Tomorrow at 7 PM for 4 people", "")
	require.NoError(t, err)
	assert.False(t, resp.Done)
	assert.Contains(t, resp.Prompt, "name for the reservation")

	sess, err := store.Load(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-11", sess.Slots["date"])
	assert.Equal(t, "19:00", sess.Slots["time"])
	assert.Equal(t, "4", sess.Slots["party_size"])

	resp, err = eng.HandleTurn(ctx, "CA1", flow.Reservation, "my name is John Smith", "")
	require.NoError(t, err)
	assert.Contains(t, resp.Prompt, "phone number")

	resp, err = eng.HandleTurn(ctx, "CA1", flow.Reservation, "555-123-4567", "")
	require.NoError(t, err)
	assert.Contains(t, resp.Prompt, "Is that all correct?")

	sess, err = store.Load(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, session.StateConfirming, sess.State)

	resp, err = eng.HandleTurn(ctx, "CA1", flow.Reservation, "yes", "")
	require.NoError(t, err)
	assert.True(t, resp.Done)
	require.NotNil(t, resp.Action)
	assert.Equal(t, ActionReservationCreated, resp.Action.Kind)
	assert.NotEmpty(t, resp.Action.TicketID)
	assert.Equal(t, "John Smith", resp.Action.Details["name"])
	assert.Equal(t, "+15551234567", resp.Action.Details["phone"])
}

func TestConfirmingDenyReopensLastSlot(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	c := &scriptedClassifier{t: t, script: []scriptedTurn{
		provideInfo(map[string]string{
			"date": "tomorrow", "time": "7 pm", "party_size": "4",
			"name": "John Smith", "phone": "555-123-4567",
		}),
		intentOnly(classify.IntentDeny),
		provideInfo(map[string]string{"phone": "555-987-6543"}),
		intentOnly(classify.IntentAffirm),
	}}
	eng := newTestEngine(t, c, store)

	resp, err := eng.HandleTurn(ctx, "CA1", flow.Reservation, "everything at once", "")
	require.NoError(t, err)
	assert.Contains(t, resp.Prompt, "Is that all correct?")

	// Denial with no named slot reopens the most recently declared one.
	resp, err = eng.HandleTurn(ctx, "CA1", flow.Reservation, "no", "")
	require.NoError(t, err)
	assert.Contains(t, resp.Prompt, "My mistake")
	assert.Contains(t, resp.Prompt, "phone number")

	sess, err := store.Load(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, session.StateCollecting, sess.State)
	assert.NotContains(t, sess.Slots, "phone")

	resp, err = eng.HandleTurn(ctx, "CA1", flow.Reservation, "it's 555-987-6543", "")
	require.NoError(t, err)
	assert.Contains(t, resp.Prompt, "Is that all correct?")

	resp, err = eng.HandleTurn(ctx, "CA1", flow.Reservation, "yes", "")
	require.NoError(t, err)
	require.NotNil(t, resp.Action)
	assert.Equal(t, "+15559876543", resp.Action.Details["phone"])
}

func TestCorrectionOverwritesFilledSlot(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	c := &scriptedClassifier{t: t, script: []scriptedTurn{
		provideInfo(map[string]string{"date": "tomorrow", "time": "7 pm"}),
		// Plain provide_info never overwrites a filled slot.
		provideInfo(map[string]string{"time": "8 pm", "party_size": "4"}),
		// An explicit correction does.
		{res: &classify.Result{Intent: classify.IntentCorrection, Fields: map[string]string{"time": "6 pm"}, Confidence: 0.9}},
	}}
	eng := newTestEngine(t, c, store)

	_, err := eng.HandleTurn(ctx, "CA1", flow.Reservation, "tomorrow at 7", "")
	require.NoError(t, err)

	_, err = eng.HandleTurn(ctx, "CA1", flow.Reservation, "8 pm for four", "")
	require.NoError(t, err)
	sess, err := store.Load(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, "19:00", sess.Slots["time"], "filled slot survives non-correction turn")
	assert.Equal(t, "4", sess.Slots["party_size"])

	_, err = eng.HandleTurn(ctx, "CA1", flow.Reservation, "actually make that 6 pm", "")
	require.NoError(t, err)
	sess, err = store.Load(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, "18:00", sess.Slots["time"])
}

func TestInquiryUrgentPriorityEscalatesAtConfirmation(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	c := &scriptedClassifier{t: t, script: []scriptedTurn{
		provideInfo(map[string]string{"reason": "my card was stolen and there are charges I don't recognize"}),
		provideInfo(map[string]string{"name": "Jane Doe"}),
		provideInfo(map[string]string{"phone": "555-123-4567"}),
		intentOnly(classify.IntentAffirm),
	}}
	eng := newTestEngine(t, c, store)

	// Priority locks from the raw utterance, before any classification.
	_, err := eng.HandleTurn(ctx, "CA9", flow.Inquiry, "my card was stolen and there are charges I don't recognize", "")
	require.NoError(t, err)

	sess, err := store.Load(ctx, "CA9")
	require.NoError(t, err)
	assert.Equal(t, flow.PriorityUrgent, sess.Priority)

	_, err = eng.HandleTurn(ctx, "CA9", flow.Inquiry, "Jane Doe", "")
	require.NoError(t, err)

	// Calm follow-ups never lower the locked priority.
	sess, err = store.Load(ctx, "CA9")
	require.NoError(t, err)
	assert.Equal(t, flow.PriorityUrgent, sess.Priority)

	resp, err := eng.HandleTurn(ctx, "CA9", flow.Inquiry, "555-123-4567", "")
	require.NoError(t, err)
	assert.Contains(t, resp.Prompt, "Did I get that right?")

	resp, err = eng.HandleTurn(ctx, "CA9", flow.Inquiry, "yes", "")
	require.NoError(t, err)
	require.NotNil(t, resp.Action)
	assert.Equal(t, ActionEscalated, resp.Action.Kind)
	assert.Equal(t, flow.PriorityUrgent, resp.Action.Priority)
	assert.Equal(t, "Jane Doe", resp.Action.Details["name"])
}

func TestThreeFailedTurnsForceTheFourth(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	// Three turns that capture nothing; the fourth must not reach the
	// classifier at all.
	c := &scriptedClassifier{t: t, script: []scriptedTurn{
		intentOnly(classify.IntentUnknown),
		intentOnly(classify.IntentUnknown),
		intentOnly(classify.IntentUnknown),
	}}
	eng := newTestEngine(t, c, store)

	for i := 0; i < 3; i++ {
		resp, err := eng.HandleTurn(ctx, "CA1", flow.Reservation, "mumble", "")
		require.NoError(t, err)
		assert.False(t, resp.Done)
	}

	sess, err := store.Load(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, 3, sess.ConsecutiveFailures)

	// Content of the fourth utterance is irrelevant.
	resp, err := eng.HandleTurn(ctx, "CA1", flow.Reservation, "tomorrow at 7 pm for 4", "")
	require.NoError(t, err)
	assert.True(t, resp.Done)
	require.NotNil(t, resp.Action)
	assert.Equal(t, ActionAbandoned, resp.Action.Kind)
	assert.Equal(t, "fallback: force_abandon", resp.Action.Reason)
	assert.Equal(t, 3, c.calls)
}

func TestFailedInquiryEscalatesInstead(t *testing.T) {
	ctx := context.Background()
	c := &scriptedClassifier{t: t, script: []scriptedTurn{
		intentOnly(classify.IntentUnknown),
		intentOnly(classify.IntentUnknown),
		intentOnly(classify.IntentUnknown),
	}}
	eng := newTestEngine(t, c, nil)

	for i := 0; i < 3; i++ {
		_, err := eng.HandleTurn(ctx, "CA1", flow.Inquiry, "static", "")
		require.NoError(t, err)
	}

	resp, err := eng.HandleTurn(ctx, "CA1", flow.Inquiry, "static", "")
	require.NoError(t, err)
	require.NotNil(t, resp.Action)
	assert.Equal(t, ActionEscalated, resp.Action.Kind)
	assert.NotEmpty(t, resp.Action.TicketID)
}

func TestClassifierOutagesEscalateAnyFlow(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	c := &scriptedClassifier{t: t, script: []scriptedTurn{
		{err: classify.ErrUnavailable},
		{err: classify.ErrUnavailable},
		{err: classify.ErrUnavailable},
	}}
	eng := newTestEngine(t, c, store)

	for i := 0; i < 3; i++ {
		resp, err := eng.HandleTurn(ctx, "CA1", flow.Reservation, "tomorrow", "")
		require.NoError(t, err)
		assert.False(t, resp.Done)
		assert.Contains(t, resp.Prompt, "say that once more")
	}

	sess, err := store.Load(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, 3, sess.UnavailableCount)
	assert.Equal(t, 0, sess.ConsecutiveFailures, "outages are not caller failures")

	resp, err := eng.HandleTurn(ctx, "CA1", flow.Reservation, "tomorrow", "")
	require.NoError(t, err)
	require.NotNil(t, resp.Action)
	assert.Equal(t, ActionEscalated, resp.Action.Kind)
}

func TestLowConfidenceReasksPendingSlot(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	c := &scriptedClassifier{t: t, script: []scriptedTurn{
		{res: &classify.Result{Intent: classify.IntentUnknown, Confidence: 0.2}, err: classify.ErrLowConfidence},
	}}
	eng := newTestEngine(t, c, store)

	resp, err := eng.HandleTurn(ctx, "CA1", flow.Reservation, "ehh maybe sometime", "")
	require.NoError(t, err)
	assert.Contains(t, resp.Prompt, "make sure I get this right")
	assert.Contains(t, resp.Prompt, "What date")

	sess, err := store.Load(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, 1, sess.ConsecutiveFailures)
	assert.Equal(t, session.StateCollecting, sess.State)
}

func TestRejectedValueReasksWithDetail(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	c := &scriptedClassifier{t: t, script: []scriptedTurn{
		provideInfo(map[string]string{"date": "2024-01-01"}),
	}}
	eng := newTestEngine(t, c, store)

	resp, err := eng.HandleTurn(ctx, "CA1", flow.Reservation, "January first last year", "")
	require.NoError(t, err)
	assert.Contains(t, resp.Prompt, "already passed")
	assert.Contains(t, resp.Prompt, "What date")

	sess, err := store.Load(ctx, "CA1")
	require.NoError(t, err)
	assert.NotContains(t, sess.Slots, "date")
	assert.Equal(t, 1, sess.ConsecutiveFailures, "a rejected value is a failed turn")
}

func TestSilenceMidConversation(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	c := &scriptedClassifier{t: t, script: []scriptedTurn{
		provideInfo(map[string]string{"date": "tomorrow"}),
	}}
	eng := newTestEngine(t, c, store)

	_, err := eng.HandleTurn(ctx, "CA1", flow.Reservation, "tomorrow", "")
	require.NoError(t, err)

	// Silence after the first turn is a failed turn, not a new greeting.
	resp, err := eng.HandleTurn(ctx, "CA1", flow.Reservation, "   ", "")
	require.NoError(t, err)
	assert.Contains(t, resp.Prompt, "didn't hear anything")

	sess, err := store.Load(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, 1, sess.ConsecutiveFailures)
}

func TestCancelAbandonsImmediately(t *testing.T) {
	ctx := context.Background()
	c := &scriptedClassifier{t: t, script: []scriptedTurn{
		intentOnly(classify.IntentCancel),
	}}
	eng := newTestEngine(t, c, nil)

	resp, err := eng.HandleTurn(ctx, "CA1", flow.Reservation, "never mind, goodbye", "")
	require.NoError(t, err)
	assert.True(t, resp.Done)
	require.NotNil(t, resp.Action)
	assert.Equal(t, ActionAbandoned, resp.Action.Kind)
	assert.Equal(t, "caller disengaged", resp.Action.Reason)
}

func TestDuplicateTokenReplaysWithoutReprocessing(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	c := &scriptedClassifier{t: t, script: []scriptedTurn{
		provideInfo(map[string]string{"date": "tomorrow"}),
	}}
	eng := newTestEngine(t, c, store)

	first, err := eng.HandleTurn(ctx, "CA1", flow.Reservation, "tomorrow", "tok-1")
	require.NoError(t, err)

	before, err := store.Load(ctx, "CA1")
	require.NoError(t, err)

	// Same token again: identical response, no classifier call, no writes.
	replay, err := eng.HandleTurn(ctx, "CA1", flow.Reservation, "tomorrow", "tok-1")
	require.NoError(t, err)
	assert.Equal(t, first.Prompt, replay.Prompt)
	assert.Equal(t, 1, c.calls)

	after, err := store.Load(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, before.TurnCount, after.TurnCount)
}

func TestTerminalSessionRepliesIdempotently(t *testing.T) {
	ctx := context.Background()
	c := &scriptedClassifier{t: t, script: []scriptedTurn{
		intentOnly(classify.IntentCancel),
	}}
	eng := newTestEngine(t, c, nil)

	done, err := eng.HandleTurn(ctx, "CA1", flow.Reservation, "forget it", "")
	require.NoError(t, err)
	require.True(t, done.Done)

	// Any further turn replays the terminal response unchanged.
	again, err := eng.HandleTurn(ctx, "CA1", flow.Reservation, "wait, tomorrow at 7", "")
	require.NoError(t, err)
	assert.Equal(t, done.Prompt, again.Prompt)
	require.NotNil(t, again.Action)
	assert.Equal(t, done.Action.Kind, again.Action.Kind)
	assert.Equal(t, 1, c.calls)
}

// conflictingStore fails the first Save with a version conflict, as if a
// concurrent instance had written in between.
type conflictingStore struct {
	session.Store
	conflicts int
	fired     int
}

func (s *conflictingStore) Save(ctx context.Context, sess *session.Session, expected int64) error {
	if s.fired < s.conflicts {
		s.fired++
		return session.ErrVersionConflict
	}
	return s.Store.Save(ctx, sess, expected)
}

func TestVersionConflictRetriesWholeTurn(t *testing.T) {
	ctx := context.Background()
	store := &conflictingStore{Store: session.NewMemoryStore(), conflicts: 1}
	c := &scriptedClassifier{t: t, script: []scriptedTurn{
		provideInfo(map[string]string{"date": "tomorrow"}),
		provideInfo(map[string]string{"date": "tomorrow"}),
	}}
	eng := newTestEngine(t, c, store)

	resp, err := eng.HandleTurn(ctx, "CA1", flow.Reservation, "tomorrow", "")
	require.NoError(t, err)
	assert.False(t, resp.Done)
	assert.Equal(t, 2, c.calls, "the whole turn reruns against fresh state")

	sess, err := store.Load(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-11", sess.Slots["date"])
	assert.Equal(t, int64(1), sess.Version)
}

func TestExpiredSessionReinitializes(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	c := &scriptedClassifier{t: t, script: []scriptedTurn{
		provideInfo(map[string]string{"date": "tomorrow"}),
		provideInfo(map[string]string{"date": "friday"}),
	}}
	eng := newTestEngine(t, c, store)

	_, err := eng.HandleTurn(ctx, "CA1", flow.Reservation, "tomorrow", "")
	require.NoError(t, err)

	// TTL expiry between turns: the next turn starts a fresh session
	// instead of failing the call.
	_, err = store.DeleteExpired(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)

	_, err = eng.HandleTurn(ctx, "CA1", flow.Reservation, "friday", "")
	require.NoError(t, err)

	sess, err := store.Load(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-14", sess.Slots["date"])
	assert.Equal(t, int64(1), sess.Version)
}
