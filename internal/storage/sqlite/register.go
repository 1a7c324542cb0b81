package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"bulkupdate/internal/storage"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

func init() {
	storage.Register("sqlite", storage.Backend{
		DriverName: "sqlite",
		Dialect:    Dialect{},
		ValidateDSN: func(dsn string) error {
			if strings.TrimSpace(dsn) == "" {
				return fmt.Errorf("sqlite: DSN must not be empty")
			}
			return nil
		},
		Configure: configure,
	})
}

// configure pins private in-memory databases to a single connection, since
// every new connection would otherwise see an empty database, and enables
// foreign keys.
func configure(ctx context.Context, db *sql.DB, dsn string) error {
	if isPrivateMemory(dsn) {
		db.SetMaxOpenConns(1)
	}
	// Ignore the error if the build does not support the pragma.
	_, _ = db.ExecContext(ctx, "PRAGMA foreign_keys = ON;")
	return nil
}

func isPrivateMemory(dsn string) bool {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file::memory:") {
		return !strings.Contains(dsn, "cache=shared")
	}
	return strings.Contains(dsn, "mode=memory") && !strings.Contains(dsn, "cache=shared")
}
