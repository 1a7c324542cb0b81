package postgres

import (
	"bulkupdate/internal/storage"

	"github.com/jackc/pgx/v5"
)

// init registers the "postgres" backend. The pgx stdlib package, imported by
// the loader, registers the "pgx" database/sql driver.
func init() {
	storage.Register("postgres", storage.Backend{
		DriverName: "pgx",
		Dialect:    Dialect{},
		ValidateDSN: func(dsn string) error {
			_, err := pgx.ParseConfig(dsn)
			return err
		},
	})
}
