package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CounterStore persists per-controller submission counters.
type CounterStore interface {
	// Step applies Advance to the controller's counter atomically and
	// returns the new value and whether the submission is promoted.
	Step(ctx context.Context, controllerID int64, threshold int) (counter int, promoted bool, err error)

	// Get returns the current counter and whether one exists.
	Get(ctx context.Context, controllerID int64) (counter int, exists bool, err error)
}

// SQLiteCounterStore implements CounterStore on the reading_counters table.
type SQLiteCounterStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewCounterStore creates a SQLite-backed counter store.
func NewCounterStore(db *sql.DB) *SQLiteCounterStore {
	return &SQLiteCounterStore{db: db, now: time.Now}
}

// Step reads, advances and writes the counter in one transaction. With the
// immediate transaction mode the write lock is held from the first read.
func (s *SQLiteCounterStore) Step(ctx context.Context, controllerID int64, threshold int) (int, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("beginning counter transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var current int
	exists := true
	err = tx.QueryRowContext(ctx,
		"SELECT counter FROM reading_counters WHERE controller_id = ?", controllerID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
	} else if err != nil {
		return 0, false, fmt.Errorf("reading counter for controller %d: %w", controllerID, err)
	}

	next, promote := Advance(current, exists, threshold)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reading_counters (controller_id, counter, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(controller_id) DO UPDATE SET counter = excluded.counter, updated_at = excluded.updated_at`,
		controllerID, next, s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, false, fmt.Errorf("writing counter for controller %d: %w", controllerID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("committing counter for controller %d: %w", controllerID, err)
	}
	return next, promote, nil
}

// Get returns the stored counter for controllerID.
func (s *SQLiteCounterStore) Get(ctx context.Context, controllerID int64) (int, bool, error) {
	var counter int
	err := s.db.QueryRowContext(ctx,
		"SELECT counter FROM reading_counters WHERE controller_id = ?", controllerID).Scan(&counter)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading counter for controller %d: %w", controllerID, err)
	}
	return counter, true, nil
}
