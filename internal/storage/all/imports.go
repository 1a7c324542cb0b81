// Package all wires all built-in storage backends into the storage registry.
//
// This package exists purely for side effects: importing it (even as a blank
// import) causes the init functions of each concrete backend to run, which
// register their driver name, dialect and DSN validation with the storage
// package.
//
// Importing this package makes the following storage kinds available:
//
//   - "mssql"    (bulkupdate/internal/storage/mssql)
//   - "postgres" (bulkupdate/internal/storage/postgres)
//   - "sqlite"   (bulkupdate/internal/storage/sqlite)
//   - "mysql"    (bulkupdate/internal/storage/mysql)
//
// Typical usage (in cmd/bulkupdate or a similar wiring layer):
//
//	import _ "bulkupdate/internal/storage/all"
//
//	u, err := bulkupdate.Open(ctx, "postgres", dsn,
//	    bulkupdate.WithDestination("public.people"),
//	    bulkupdate.WithPrimaryKey("id"))
//
// A binary that needs only a subset of backends can import the backend
// packages it wants directly instead of this package.
package all

import (
	_ "bulkupdate/internal/storage/mssql"
	_ "bulkupdate/internal/storage/mysql"
	_ "bulkupdate/internal/storage/postgres"
	_ "bulkupdate/internal/storage/sqlite"
)
