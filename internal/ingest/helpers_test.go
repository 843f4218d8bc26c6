package ingest

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nerrad567/dcsense-core/internal/infrastructure/database"
	"github.com/nerrad567/dcsense-core/migrations"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "ingest-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(t.Context(), migrations.FS); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	return db.DB
}

type testPipeline struct {
	*Pipeline
	db         *sql.DB
	counters   *SQLiteCounterStore
	research   *SQLiteReadingStore
	production *SQLiteReadingStore
}

func newTestPipeline(t *testing.T, opts ...Option) *testPipeline {
	t.Helper()

	db := setupTestDB(t)
	tp := &testPipeline{
		db:         db,
		counters:   NewCounterStore(db),
		research:   NewResearchStore(db),
		production: NewProductionStore(db),
	}
	tp.Pipeline = NewPipeline(tp.counters, tp.research, tp.production,
		slog.New(slog.DiscardHandler), opts...)
	return tp
}

func batchFor(controller int64, seconds float64, n int) []RawReading {
	batch := make([]RawReading, n)
	for i := range batch {
		batch[i] = RawReading{
			Controller: controller,
			Bus:        1,
			SensorAddr: int64(40 + i),
			Time:       seconds,
			Temp:       20 + float64(i)/2,
		}
	}
	return batch
}

func setCounter(t *testing.T, db *sql.DB, controller int64, value int) {
	t.Helper()
	_, err := db.ExecContext(t.Context(),
		`INSERT INTO reading_counters (controller_id, counter, updated_at) VALUES (?, ?, '2026-03-01T09:00:00Z')
		 ON CONFLICT(controller_id) DO UPDATE SET counter = excluded.counter`, controller, value)
	if err != nil {
		t.Fatalf("setting counter: %v", err)
	}
}

// recordingSink captures writes for assertions.
type recordingSink struct {
	mu      sync.Mutex
	batches [][]Reading
	err     error
}

func (s *recordingSink) Write(_ context.Context, readings []Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, readings)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}
