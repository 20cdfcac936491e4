package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/room4-2/OpenDialog/classify"
	"github.com/room4-2/OpenDialog/flow"
	"github.com/room4-2/OpenDialog/session"
)

// ErrFlowRequired is returned when a turn arrives for an unknown call
// without a flow hint, so the engine cannot (re)initialize the session.
var ErrFlowRequired = errors.New("flow hint required for new session")

// turnRetryLimit bounds how often one turn is recomputed after losing a
// version race to a concurrent writer.
const turnRetryLimit = 3

// Engine drives multi-turn conversations: one stateless HandleTurn call per
// inbound turn, with all cross-turn state living in the session store.
type Engine struct {
	store      session.Store
	classifier classify.Classifier
	policies   map[flow.Type]flow.Policy
	fallback   *Fallback
	now        func() time.Time

	mu    sync.Mutex
	locks map[string]*callLock
}

type callLock struct {
	mu   sync.Mutex
	refs int
}

// New wires the engine and validates every policy. Policy misconfiguration
// is the one fatal error class; it surfaces here, at startup, never
// mid-conversation.
func New(store session.Store, classifier classify.Classifier, policies []flow.Policy, fbCfg FallbackConfig) (*Engine, error) {
	if store == nil {
		return nil, errors.New("engine: nil session store")
	}
	if classifier == nil {
		return nil, errors.New("engine: nil classifier")
	}
	fb, err := NewFallback(fbCfg)
	if err != nil {
		return nil, err
	}

	byFlow := make(map[flow.Type]flow.Policy, len(policies))
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		if _, dup := byFlow[p.Flow()]; dup {
			return nil, fmt.Errorf("engine: duplicate policy for flow %q", p.Flow())
		}
		byFlow[p.Flow()] = p
	}
	if len(byFlow) == 0 {
		return nil, errors.New("engine: no flow policies configured")
	}

	return &Engine{
		store:      store,
		classifier: classifier,
		policies:   byFlow,
		fallback:   fb,
		now:        time.Now,
		locks:      make(map[string]*callLock),
	}, nil
}

// HandleTurn processes one turn of the conversation identified by callID.
// flowHint selects the policy when the session does not exist yet (first
// turn, or an expired session being re-initialized). turnToken is the
// transport's idempotency key: a turn delivered twice with the same token
// replays the first response without re-applying any writes.
//
// Turns for different calls run concurrently; turns for the same call are
// serialized, and a version conflict from another instance retries the whole
// turn against fresh state.
func (e *Engine) HandleTurn(ctx context.Context, callID string, flowHint flow.Type, utterance, turnToken string) (*TurnResponse, error) {
	if callID == "" {
		return nil, errors.New("engine: empty call id")
	}

	lock := e.acquire(callID)
	defer e.release(callID, lock)

	var resp *TurnResponse
	operation := func() error {
		r, err := e.processTurn(ctx, callID, flowHint, utterance, turnToken)
		if err != nil {
			if errors.Is(err, session.ErrVersionConflict) {
				log.Printf("🔄 [%s] version conflict, retrying turn", shortID(callID))
				return err
			}
			return backoff.Permanent(err)
		}
		resp = r
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 25 * time.Millisecond
	bo.MaxElapsedTime = 2 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, turnRetryLimit), ctx)); err != nil {
		return nil, err
	}
	return resp, nil
}

// processTurn is one attempt at the per-turn algorithm; it re-loads the
// session every attempt so retries always see fresh state.
func (e *Engine) processTurn(ctx context.Context, callID string, flowHint flow.Type, utterance, turnToken string) (*TurnResponse, error) {
	now := e.now()

	sess, err := e.store.Load(ctx, callID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		// First turn, or the session expired mid-call: re-initialize
		// rather than fail the call.
		if flowHint == "" {
			return nil, ErrFlowRequired
		}
		if _, ok := e.policies[flowHint]; !ok {
			return nil, fmt.Errorf("engine: no policy for flow %q", flowHint)
		}
		sess = session.New(callID, flowHint, now)
	case err != nil:
		return nil, err
	}

	policy, ok := e.policies[sess.Flow]
	if !ok {
		return nil, fmt.Errorf("engine: no policy for flow %q", sess.Flow)
	}

	// Duplicate webhook delivery: replay, mutate nothing.
	if turnToken != "" && turnToken == sess.LastToken && sess.LastPrompt != "" {
		log.Printf("♻️ [%s] duplicate turn token, replaying cached response", shortID(callID))
		return e.respond(sess), nil
	}

	// Terminal sessions return the cached terminal prompt unchanged.
	if sess.IsTerminal() {
		return e.respond(sess), nil
	}

	expected := sess.Version

	// First contact carries no speech; open with the flow's greeting.
	if strings.TrimSpace(utterance) == "" && sess.TurnCount == 0 {
		sess.TurnCount++
		sess.LastToken = turnToken
		sess.LastPrompt = policy.Greeting()
		if err := e.store.Save(ctx, sess, expected); err != nil {
			return nil, err
		}
		return e.respond(sess), nil
	}

	// The fallback controller speaks first and its decision is final:
	// a session over its failure budget terminates no matter what was
	// just said.
	var prompt string
	if d := e.fallback.Decide(sess); d != Continue {
		prompt = e.force(sess, policy, d)
	} else {
		prompt = e.step(ctx, sess, policy, utterance)
	}

	sess.TurnCount++
	sess.LastToken = turnToken
	sess.LastPrompt = prompt

	if err := e.store.Save(ctx, sess, expected); err != nil {
		return nil, err
	}
	return e.respond(sess), nil
}

// respond builds the transport response from persisted session state, so
// live turns and replays are indistinguishable.
func (e *Engine) respond(sess *session.Session) *TurnResponse {
	action := actionFromTerminal(sess.Terminal)
	return &TurnResponse{
		Prompt: sess.LastPrompt,
		Action: action,
		Done:   action != nil,
	}
}

func (e *Engine) acquire(callID string) *callLock {
	e.mu.Lock()
	l, ok := e.locks[callID]
	if !ok {
		l = &callLock{}
		e.locks[callID] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()
	return l
}

func (e *Engine) release(callID string, l *callLock) {
	l.mu.Unlock()

	e.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(e.locks, callID)
	}
	e.mu.Unlock()
}
