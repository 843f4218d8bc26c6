package facility

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the facility registry operations.
type Repository interface {
	Create(ctx context.Context, name string) error
	Delete(ctx context.Context, name string) error
	Get(ctx context.Context, name string) (*Facility, error)
	List(ctx context.Context) ([]string, error)
	ListOwned(ctx context.Context, username string) ([]string, error)
	Owners(ctx context.Context, name string) ([]string, error)
	Controllers(ctx context.Context, name string) ([]int64, error)
	UpdateOwners(ctx context.Context, name string, op Op, username string) error
	UpdateControllers(ctx context.Context, name string, op Op, controllerID int64) error
	PruneOwner(ctx context.Context, username string) (int64, error)

	IsFacilityOwner(ctx context.Context, username, name string) (bool, error)
	IsControllerOwner(ctx context.Context, username string, controllerID int64) (bool, error)
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed facility registry.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create registers an empty facility.
func (r *SQLiteRepository) Create(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO facilities (name, created_at) VALUES (?, ?)",
		name, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrFacilityExists
		}
		return fmt.Errorf("inserting facility %s: %w", name, err)
	}
	return nil
}

// Delete removes a facility along with its owner and controller sets.
func (r *SQLiteRepository) Delete(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM facilities WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting facility %s: %w", name, err)
	}
	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrFacilityNotFound
	}
	return nil
}

// Get returns a facility with both member sets.
func (r *SQLiteRepository) Get(ctx context.Context, name string) (*Facility, error) {
	owners, err := r.Owners(ctx, name)
	if err != nil {
		return nil, err
	}
	controllers, err := r.Controllers(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Facility{Name: name, Owners: owners, Controllers: controllers}, nil
}

// List returns every facility name in ascending order.
func (r *SQLiteRepository) List(ctx context.Context) ([]string, error) {
	return r.queryStrings(ctx, "SELECT name FROM facilities ORDER BY name")
}

// ListOwned returns the names of facilities username owns.
func (r *SQLiteRepository) ListOwned(ctx context.Context, username string) ([]string, error) {
	return r.queryStrings(ctx,
		"SELECT facility FROM facility_owners WHERE username = ? ORDER BY facility", username)
}

// Owners returns the owner set of a facility.
func (r *SQLiteRepository) Owners(ctx context.Context, name string) ([]string, error) {
	if err := r.requireFacility(ctx, r.db, name); err != nil {
		return nil, err
	}
	return r.queryStrings(ctx,
		"SELECT username FROM facility_owners WHERE facility = ? ORDER BY username", name)
}

// Controllers returns the controller set of a facility.
func (r *SQLiteRepository) Controllers(ctx context.Context, name string) ([]int64, error) {
	if err := r.requireFacility(ctx, r.db, name); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT controller_id FROM facility_controllers WHERE facility = ? ORDER BY controller_id", name)
	if err != nil {
		return nil, fmt.Errorf("listing controllers of %s: %w", name, err)
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

// UpdateOwners adds or removes username from the facility's owner set.
// Adding requires username to be a registered user.
func (r *SQLiteRepository) UpdateOwners(ctx context.Context, name string, op Op, username string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := r.requireFacility(ctx, tx, name); err != nil {
			return err
		}

		switch op {
		case OpAdd:
			var one int
			err := tx.QueryRowContext(ctx, "SELECT 1 FROM users WHERE username = ?", username).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrOwnerNotFound
			}
			if err != nil {
				return fmt.Errorf("checking owner %s: %w", username, err)
			}
			_, err = tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO facility_owners (facility, username) VALUES (?, ?)", name, username)
			if err != nil {
				return fmt.Errorf("adding owner %s to %s: %w", username, name, err)
			}
		case OpRemove:
			_, err := tx.ExecContext(ctx,
				"DELETE FROM facility_owners WHERE facility = ? AND username = ?", name, username)
			if err != nil {
				return fmt.Errorf("removing owner %s from %s: %w", username, name, err)
			}
		default:
			return fmt.Errorf("%w: %q", ErrUnknownOp, op)
		}
		return nil
	})
}

// UpdateControllers adds or removes controllerID from the facility's controller set.
func (r *SQLiteRepository) UpdateControllers(ctx context.Context, name string, op Op, controllerID int64) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := r.requireFacility(ctx, tx, name); err != nil {
			return err
		}

		var err error
		switch op {
		case OpAdd:
			_, err = tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO facility_controllers (facility, controller_id) VALUES (?, ?)", name, controllerID)
		case OpRemove:
			_, err = tx.ExecContext(ctx,
				"DELETE FROM facility_controllers WHERE facility = ? AND controller_id = ?", name, controllerID)
		default:
			return fmt.Errorf("%w: %q", ErrUnknownOp, op)
		}
		if err != nil {
			return fmt.Errorf("updating controllers of %s: %w", name, err)
		}
		return nil
	})
}

// PruneOwner removes username from every owner set and returns how many
// facilities were affected.
func (r *SQLiteRepository) PruneOwner(ctx context.Context, username string) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM facility_owners WHERE username = ?", username)
	if err != nil {
		return 0, fmt.Errorf("pruning owner %s: %w", username, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}

// IsFacilityOwner reports whether username owns the named facility.
func (r *SQLiteRepository) IsFacilityOwner(ctx context.Context, username, name string) (bool, error) {
	return r.exists(ctx,
		"SELECT 1 FROM facility_owners WHERE facility = ? AND username = ?", name, username)
}

// IsControllerOwner reports whether username owns any facility that lists controllerID.
func (r *SQLiteRepository) IsControllerOwner(ctx context.Context, username string, controllerID int64) (bool, error) {
	return r.exists(ctx,
		`SELECT 1 FROM facility_controllers fc
		 JOIN facility_owners fo ON fo.facility = fc.facility
		 WHERE fc.controller_id = ? AND fo.username = ?
		 LIMIT 1`, controllerID, username)
}

func (r *SQLiteRepository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking ownership: %w", err)
	}
	return true, nil
}

func (r *SQLiteRepository) requireFacility(ctx context.Context, q queryer, name string) error {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM facilities WHERE name = ?", name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrFacilityNotFound
	}
	if err != nil {
		return fmt.Errorf("looking up facility %s: %w", name, err)
	}
	return nil
}

func (r *SQLiteRepository) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying facilities: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}
