package auth

import (
	"database/sql"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/dcsense-core/internal/infrastructure/database"
	"github.com/nerrad567/dcsense-core/migrations"
)

const testCredentialKey = "test-credential-key-0123456789abcdef"

// testDB creates a temporary SQLite database with every migration applied.
// The database file is removed when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "auth-test.db"),
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

// fakeClock is a settable clock for expiry tests.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// testAuthenticator builds an Authenticator over a fresh database.
func testAuthenticator(t *testing.T, scheme string, opts ...Option) (*Authenticator, *sql.DB) {
	t.Helper()

	db := testDB(t)
	hasher, err := NewCredentialHasher(testCredentialKey, scheme)
	if err != nil {
		t.Fatalf("NewCredentialHasher() error = %v", err)
	}
	a := NewAuthenticator(NewUserRepository(db), NewTicketRepository(db), hasher, discardLogger(), opts...)
	return a, db
}

// seedTestUser registers a user with password "test-password".
func seedTestUser(t *testing.T, a *Authenticator, username string, level AccessLevel) *User {
	t.Helper()

	u, err := a.Register(t.Context(), username, "test-password", level)
	if err != nil {
		t.Fatalf("registering test user %s: %v", username, err)
	}
	return u
}
