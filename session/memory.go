package session

import (
	"context"
	"log"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. It serves single-instance
// deployments, the CLI, and tests; multi-instance deployments need the
// Redis store so every worker sees the same state.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, callID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[callID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

// Save implements Store with compare-and-swap on the session version.
func (m *MemoryStore) Save(_ context.Context, s *Session, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, exists := m.sessions[s.CallID]
	if exists && cur.Version != expectedVersion {
		return ErrVersionConflict
	}
	if !exists && expectedVersion != 0 {
		return ErrVersionConflict
	}

	s.Version = expectedVersion + 1
	s.UpdatedAt = time.Now()
	m.sessions[s.CallID] = s.Clone()
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, callID)
	return nil
}

// DeleteExpired implements Store.
func (m *MemoryStore) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(before) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of live sessions.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// StartCleanupRoutine expires idle sessions every interval until ctx is
// cancelled. Expiry runs under the same lock as Save, so it never mutates a
// session mid-turn.
func (m *MemoryStore) StartCleanupRoutine(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, _ := m.DeleteExpired(ctx, time.Now().Add(-ttl)); n > 0 {
				log.Printf("🧹 Expired %d idle session(s)", n)
			}
		}
	}
}
