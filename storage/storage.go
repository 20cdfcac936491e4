package storage

import (
	"context"
	"time"
)

// Reservation is a finalized booking produced by a completed reservation
// conversation.
type Reservation struct {
	ID              string    `json:"id"`
	CallID          string    `json:"call_id"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	PartySize       string    `json:"party_size"`
	SpecialRequests string    `json:"special_requests,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Inquiry is a finalized intake ticket from an inquiry conversation,
// including escalations.
type Inquiry struct {
	ID           string    `json:"id"`
	CallID       string    `json:"call_id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Reason       string    `json:"reason"`
	Email        string    `json:"email,omitempty"`
	MemberNumber string    `json:"member_number,omitempty"`
	Priority     string    `json:"priority"`
	Escalated    bool      `json:"escalated"`
	CreatedAt    time.Time `json:"created_at"`
}

// Stats summarizes stored records for the admin dashboard.
type Stats struct {
	Reservations       int `json:"reservations"`
	Inquiries          int `json:"inquiries"`
	EscalatedInquiries int `json:"escalated_inquiries"`
}

// Store persists finalized conversation outcomes. Session state never lands
// here; only terminal results do.
type Store interface {
	SaveReservation(ctx context.Context, r *Reservation) error
	SaveInquiry(ctx context.Context, q *Inquiry) error
	ListReservations(ctx context.Context, limit int) ([]Reservation, error)
	ListInquiries(ctx context.Context, limit int) ([]Inquiry, error)
	Stats(ctx context.Context) (*Stats, error)
	Close()
}
