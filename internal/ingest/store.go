package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Tier table names.
const (
	tableResearch   = "research_readings"
	tableProduction = "readings"
)

// Sink receives reading batches.
type Sink interface {
	Write(ctx context.Context, readings []Reading) error
}

// SQLiteReadingStore stores readings in one tier table. It is a Sink and
// also answers the production queries.
type SQLiteReadingStore struct {
	db    *sql.DB
	table string
}

// NewResearchStore returns the store for the full-fidelity tier.
func NewResearchStore(db *sql.DB) *SQLiteReadingStore {
	return &SQLiteReadingStore{db: db, table: tableResearch}
}

// NewProductionStore returns the store for the decimated tier.
func NewProductionStore(db *sql.DB) *SQLiteReadingStore {
	return &SQLiteReadingStore{db: db, table: tableProduction}
}

// Write inserts readings in one transaction.
func (s *SQLiteReadingStore) Write(ctx context.Context, readings []Reading) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning %s write: %w", s.table, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	//nolint:gosec // G202: table is one of two constants
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+s.table+
		" (controller_id, bus, sensor_addr, recorded_at, temperature) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing %s insert: %w", s.table, err)
	}
	defer stmt.Close()

	for _, r := range readings {
		if _, err := stmt.ExecContext(ctx, r.ControllerID, r.Bus, r.SensorAddr, r.Time.UnixMilli(), r.Temp); err != nil {
			return fmt.Errorf("inserting into %s: %w", s.table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing %s write: %w", s.table, err)
	}
	return nil
}

// ListControllers returns every controller with stored readings, ascending.
func (s *SQLiteReadingStore) ListControllers(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT controller_id FROM "+s.table+" ORDER BY controller_id") //nolint:gosec // constant table
	if err != nil {
		return nil, fmt.Errorf("listing controllers: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning controller id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating controllers: %w", err)
	}
	return ids, nil
}

// ListDates returns the distinct reading times for a controller, newest
// first. A limit of zero or less returns every time.
func (s *SQLiteReadingStore) ListDates(ctx context.Context, controllerID int64, limit int) ([]time.Time, error) {
	query := "SELECT DISTINCT recorded_at FROM " + s.table + //nolint:gosec // constant table
		" WHERE controller_id = ? ORDER BY recorded_at DESC"
	args := []any{controllerID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing dates for controller %d: %w", controllerID, err)
	}
	defer rows.Close()

	dates := []time.Time{}
	for rows.Next() {
		var ms int64
		if err := rows.Scan(&ms); err != nil {
			return nil, fmt.Errorf("scanning date: %w", err)
		}
		dates = append(dates, time.UnixMilli(ms).UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dates: %w", err)
	}
	return dates, nil
}

// ReadingsAt returns every reading for controllerID recorded at exactly at,
// ordered by bus and sensor address.
func (s *SQLiteReadingStore) ReadingsAt(ctx context.Context, controllerID int64, at time.Time) ([]Reading, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT controller_id, bus, sensor_addr, recorded_at, temperature FROM `+s.table+ //nolint:gosec // constant table
			` WHERE controller_id = ? AND recorded_at = ? ORDER BY bus, sensor_addr, id`,
		controllerID, at.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("querying readings for controller %d: %w", controllerID, err)
	}
	defer rows.Close()

	readings := []Reading{}
	for rows.Next() {
		var r Reading
		var ms int64
		if err := rows.Scan(&r.ControllerID, &r.Bus, &r.SensorAddr, &ms, &r.Temp); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		r.Time = time.UnixMilli(ms).UTC()
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}
	return readings, nil
}

// Count returns the number of stored readings for controllerID.
func (s *SQLiteReadingStore) Count(ctx context.Context, controllerID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+s.table+" WHERE controller_id = ?", controllerID).Scan(&n) //nolint:gosec // constant table
	if err != nil {
		return 0, fmt.Errorf("counting readings for controller %d: %w", controllerID, err)
	}
	return n, nil
}
