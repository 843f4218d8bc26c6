// Package database provides SQLite connectivity and schema migrations for dcsense-core.
//
// The connection is opened with foreign keys enforced, a busy timeout, optional
// WAL mode, and immediate transactions. A single pooled connection is used
// because SQLite allows one writer at a time.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files live in the top-level migrations package and are named
// YYYYMMDD_HHMMSS_description.up.sql / .down.sql.
package database
