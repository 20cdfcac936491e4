package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists finalized records in PostgreSQL through a pgx
// connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL, verifies the connection and
// creates the schema if it does not exist yet.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.createTables(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Println("✅ Connected to PostgreSQL")
	return s, nil
}

func (s *PostgresStore) createTables(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS reservations (
	id               TEXT PRIMARY KEY,
	call_id          TEXT NOT NULL,
	name             TEXT NOT NULL,
	phone            TEXT NOT NULL,
	date             TEXT NOT NULL,
	time             TEXT NOT NULL,
	party_size       TEXT NOT NULL,
	special_requests TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS inquiries (
	id            TEXT PRIMARY KEY,
	call_id       TEXT NOT NULL,
	name          TEXT NOT NULL,
	phone         TEXT NOT NULL,
	reason        TEXT NOT NULL,
	email         TEXT NOT NULL DEFAULT '',
	member_number TEXT NOT NULL DEFAULT '',
	priority      TEXT NOT NULL,
	escalated     BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL
);`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveReservation(ctx context.Context, r *Reservation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reservations (id, call_id, name, phone, date, time, party_size, special_requests, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		r.ID, r.CallID, r.Name, r.Phone, r.Date, r.Time, r.PartySize, r.SpecialRequests, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save reservation: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveInquiry(ctx context.Context, q *Inquiry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO inquiries (id, call_id, name, phone, reason, email, member_number, priority, escalated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		q.ID, q.CallID, q.Name, q.Phone, q.Reason, q.Email, q.MemberNumber, q.Priority, q.Escalated, q.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save inquiry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListReservations(ctx context.Context, limit int) ([]Reservation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, call_id, name, phone, date, time, party_size, special_requests, created_at
		FROM reservations ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		var r Reservation
		if err := rows.Scan(&r.ID, &r.CallID, &r.Name, &r.Phone, &r.Date, &r.Time,
			&r.PartySize, &r.SpecialRequests, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListInquiries(ctx context.Context, limit int) ([]Inquiry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, call_id, name, phone, reason, email, member_number, priority, escalated, created_at
		FROM inquiries ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list inquiries: %w", err)
	}
	defer rows.Close()

	var out []Inquiry
	for rows.Next() {
		var q Inquiry
		if err := rows.Scan(&q.ID, &q.CallID, &q.Name, &q.Phone, &q.Reason, &q.Email,
			&q.MemberNumber, &q.Priority, &q.Escalated, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan inquiry: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM reservations),
			(SELECT COUNT(*) FROM inquiries),
			(SELECT COUNT(*) FROM inquiries WHERE escalated)`).
		Scan(&st.Reservations, &st.Inquiries, &st.EscalatedInquiries)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	return &st, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
	log.Println("✅ PostgreSQL pool closed")
}
