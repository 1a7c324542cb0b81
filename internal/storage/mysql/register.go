package mysql

import (
	"bulkupdate/internal/storage"

	"github.com/go-sql-driver/mysql"
)

// init registers the "mysql" backend; the driver package registers "mysql"
// with database/sql.
func init() {
	storage.Register("mysql", storage.Backend{
		DriverName: "mysql",
		Dialect:    Dialect{},
		ValidateDSN: func(dsn string) error {
			_, err := mysql.ParseDSN(dsn)
			return err
		},
	})
}
