// Package ddl is a small, backend-agnostic model of a table definition plus a
// renderer that each storage dialect drives with its own quoting and clauses.
//
// It is used for the ID generator's counter tables and for test fixtures; it
// is not a migration tool.
package ddl

// ColumnDef describes a single column.
//
//   - Name: logical column name (unquoted; quoting happens at render time)
//   - SQLType: backend type, e.g. INT, NVARCHAR(100), BIGINT
//   - Nullable: whether NULL is allowed
//   - PrimaryKey: whether the column is part of the primary key
//   - Identity: whether the backend assigns the value (IDENTITY, AUTO_INCREMENT, ...)
//   - Default: raw default expression
type ColumnDef struct {
	Name       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
	Identity   bool
	Default    string
}

// TableDef holds the table name in dotted form ("schema.table") and an
// ordered list of columns.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}
