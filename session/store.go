package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Load when no session exists for the call.
var ErrNotFound = errors.New("session not found")

// ErrVersionConflict is returned by Save when the stored version no longer
// matches expectedVersion: another writer got there first and the whole turn
// must be retried against fresh state, never silently dropped.
var ErrVersionConflict = errors.New("session version conflict")

// Store is the shared, externally visible session store. Turns for the same
// call are serialized through Save's compare-and-swap: a successful Save with
// expectedVersion == stored version is the only way to mutate a session, and
// expectedVersion 0 creates it.
type Store interface {
	// Load returns the session for callID or ErrNotFound.
	Load(ctx context.Context, callID string) (*Session, error)

	// Save persists s if the stored version equals expectedVersion
	// (0 for a new session), bumping s.Version on success; otherwise it
	// returns ErrVersionConflict and stores nothing.
	Save(ctx context.Context, s *Session, expectedVersion int64) error

	// Delete removes a session outright.
	Delete(ctx context.Context, callID string) error

	// DeleteExpired garbage-collects sessions not updated since before.
	// It acquires the same per-call critical section as Save, so expiry
	// never races an in-flight turn.
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}
