package audit

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nerrad567/dcsense-core/internal/infrastructure/database"
	"github.com/nerrad567/dcsense-core/migrations"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "audit-test.db"),
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

func TestCreateAndList(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	entries := []*Entry{
		{Action: ActionLogin, EntityType: EntityUser, EntityID: "alice", Username: "alice", Source: SourceAPI, CreatedAt: base},
		{Action: ActionAddFacility, EntityType: EntityFacility, EntityID: "Lab A", Username: "root", Source: SourceAPI, CreatedAt: base.Add(time.Second)},
		{Action: ActionAddOwner, EntityType: EntityFacility, EntityID: "Lab A", Username: "root", Source: SourceAPI,
			Details: map[string]any{"owner": "alice"}, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if e.ID == "" {
			t.Error("Create() should generate an ID")
		}
	}

	res, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 3 || len(res.Entries) != 3 {
		t.Fatalf("List() total = %d, len = %d; want 3, 3", res.Total, len(res.Entries))
	}
	if res.Entries[0].Action != ActionAddOwner {
		t.Errorf("first entry = %q, want newest (%q)", res.Entries[0].Action, ActionAddOwner)
	}
	if res.Entries[0].Details["owner"] != "alice" {
		t.Errorf("details = %v, want owner=alice", res.Entries[0].Details)
	}
	if res.Limit != defaultLimit {
		t.Errorf("Limit = %d, want %d", res.Limit, defaultLimit)
	}
}

func TestListFilters(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	for _, e := range []*Entry{
		{Action: ActionLogin, EntityType: EntityUser, EntityID: "alice", Username: "alice", Source: SourceAPI},
		{Action: ActionLogin, EntityType: EntityUser, EntityID: "bob", Username: "bob", Source: SourceAPI},
		{Action: ActionRemoveUser, EntityType: EntityUser, EntityID: "bob", Username: "root", Source: SourceAPI},
	} {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"by action", Filter{Action: ActionLogin}, 2},
		{"by entity", Filter{EntityType: EntityUser, EntityID: "bob"}, 2},
		{"by username", Filter{Username: "root"}, 1},
		{"combined", Filter{Action: ActionLogin, Username: "alice"}, 1},
		{"no match", Filter{Action: ActionAddFacility}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.want || len(res.Entries) != tt.want {
				t.Errorf("List() total = %d, len = %d; want %d", res.Total, len(res.Entries), tt.want)
			}
		})
	}
}

func TestListPagination(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	for range 5 {
		if err := repo.Create(ctx, &Entry{Action: ActionLogin, EntityType: EntityUser, Source: SourceAPI}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	res, err := repo.List(ctx, Filter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 5 || len(res.Entries) != 1 {
		t.Errorf("List() total = %d, len = %d; want 5, 1", res.Total, len(res.Entries))
	}

	res, err = repo.List(ctx, Filter{Limit: 1000, Offset: -3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Limit != maxLimit || res.Offset != 0 {
		t.Errorf("clamped limit/offset = %d/%d, want %d/0", res.Limit, res.Offset, maxLimit)
	}
}

func TestListStorageError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	errDB := errors.New("disk I/O error")
	mock.ExpectQuery("SELECT COUNT").WillReturnError(errDB)

	_, err = NewSQLiteRepository(db).List(context.Background(), Filter{})
	if !errors.Is(err, errDB) {
		t.Errorf("List() error = %v, want wrapped errDB", err)
	}
}

func TestRecorder(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	rec := NewRecorder(repo, slog.New(slog.DiscardHandler))
	ctx := context.Background()

	rec.Record(ctx, ActionRemoveUser, EntityUser, "bob", "root", nil)

	res, err := repo.List(ctx, Filter{Action: ActionRemoveUser})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(res.Entries) != 1 || res.Entries[0].Source != SourceAPI {
		t.Errorf("entries = %+v, want one api entry", res.Entries)
	}
}

func TestRecorder_SwallowsErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnError(errors.New("locked"))

	rec := NewRecorder(NewSQLiteRepository(db), slog.New(slog.DiscardHandler))
	rec.Record(context.Background(), ActionLogin, EntityUser, "alice", "alice", nil)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}

	var nilRec *Recorder
	nilRec.Record(context.Background(), ActionLogin, EntityUser, "alice", "alice", nil)
}
