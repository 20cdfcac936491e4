package storage

import (
	"context"
	"log"
	"sync"
)

// MemoryStore keeps finalized records in process memory. It backs demo runs
// and tests where no database is configured.
type MemoryStore struct {
	mu           sync.RWMutex
	reservations []Reservation
	inquiries    []Inquiry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) SaveReservation(ctx context.Context, r *Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Replayed webhook deliveries re-submit the same ticket; keep the first.
	for _, have := range s.reservations {
		if have.ID == r.ID {
			return nil
		}
	}
	s.reservations = append(s.reservations, *r)
	return nil
}

func (s *MemoryStore) SaveInquiry(ctx context.Context, q *Inquiry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, have := range s.inquiries {
		if have.ID == q.ID {
			return nil
		}
	}
	s.inquiries = append(s.inquiries, *q)
	return nil
}

func (s *MemoryStore) ListReservations(ctx context.Context, limit int) ([]Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lastN(s.reservations, limit), nil
}

func (s *MemoryStore) ListInquiries(ctx context.Context, limit int) ([]Inquiry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lastN(s.inquiries, limit), nil
}

func (s *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := &Stats{
		Reservations: len(s.reservations),
		Inquiries:    len(s.inquiries),
	}
	for _, q := range s.inquiries {
		if q.Escalated {
			st.EscalatedInquiries++
		}
	}
	return st, nil
}

func (s *MemoryStore) Close() {
	log.Println("✅ In-memory record store closed")
}

// lastN returns up to limit records, newest first.
func lastN[T any](in []T, limit int) []T {
	if limit <= 0 || limit > len(in) {
		limit = len(in)
	}
	out := make([]T, 0, limit)
	for i := len(in) - 1; i >= len(in)-limit; i-- {
		out = append(out, in[i])
	}
	return out
}
