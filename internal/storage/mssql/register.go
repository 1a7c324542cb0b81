package mssql

import (
	"bulkupdate/internal/storage"

	"github.com/microsoft/go-mssqldb/msdsn"
)

func init() {
	storage.Register("mssql", storage.Backend{
		DriverName: "sqlserver",
		Dialect:    Dialect{},
		ValidateDSN: func(dsn string) error {
			_, err := msdsn.Parse(dsn)
			return err
		},
	})
}
