package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TicketRepository persists session tickets, at most one per user.
type TicketRepository interface {
	// Replace stores t as the user's only ticket, discarding any previous one.
	Replace(ctx context.Context, t Ticket) error

	// Find returns the stored ticket matching username and the raw value.
	Find(ctx context.Context, username, value string) (*Ticket, error)

	DeleteByUsername(ctx context.Context, username string) error

	// DeleteExpired removes tickets that expired strictly before now and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SQLiteTicketRepository implements TicketRepository using SQLite.
// Ticket values are stored as their SHA-256 digest.
type SQLiteTicketRepository struct {
	db *sql.DB
}

// NewTicketRepository creates a new SQLite-backed ticket repository.
func NewTicketRepository(db *sql.DB) *SQLiteTicketRepository {
	return &SQLiteTicketRepository{db: db}
}

// Replace deletes the user's previous ticket and inserts t in one transaction.
func (r *SQLiteTicketRepository) Replace(ctx context.Context, t Ticket) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM session_tickets WHERE username = ?", t.Username); err != nil {
		return fmt.Errorf("clearing previous ticket: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO session_tickets (username, ticket, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		t.Username, HashTicket(t.Value), t.ExpiresAt.UnixMilli(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("storing ticket: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing ticket: %w", err)
	}
	return nil
}

// Find looks up a ticket by username and raw value. The returned Ticket
// carries the raw value the caller presented.
func (r *SQLiteTicketRepository) Find(ctx context.Context, username, value string) (*Ticket, error) {
	var expiresMs int64
	err := r.db.QueryRowContext(ctx,
		"SELECT expires_at FROM session_tickets WHERE username = ? AND ticket = ?",
		username, HashTicket(value),
	).Scan(&expiresMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("finding ticket: %w", err)
	}

	return &Ticket{
		Username:  username,
		Value:     value,
		ExpiresAt: time.UnixMilli(expiresMs).UTC(),
	}, nil
}

// DeleteByUsername removes the user's ticket. Deleting a missing ticket is not an error.
func (r *SQLiteTicketRepository) DeleteByUsername(ctx context.Context, username string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM session_tickets WHERE username = ?", username); err != nil {
		return fmt.Errorf("deleting ticket: %w", err)
	}
	return nil
}

// DeleteExpired removes every ticket whose expiry is before now.
func (r *SQLiteTicketRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM session_tickets WHERE expires_at < ?", now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("deleting expired tickets: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}
