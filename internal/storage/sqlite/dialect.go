// Package sqlite implements the SQLite dialect of the staging-table protocol
// on the pure-Go modernc.org/sqlite driver. SQLite has no bulk-load API, so
// rows reach the temp staging table through a prepared INSERT, and the
// destination is refreshed with UPDATE ... FROM (SQLite 3.33+).
package sqlite

import (
	"context"
	"fmt"
	"strings"

	"bulkupdate/internal/dberr"
	"bulkupdate/internal/ddl"
	"bulkupdate/internal/storage"
)

// Dialect is the SQLite storage.Dialect.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

func (Dialect) Kind() string                  { return "sqlite" }
func (Dialect) Quote(ident string) string     { return sqIdent(ident) }
func (Dialect) QuoteTable(name string) string { return sqFQN(name) }
func (Dialect) Placeholder(int) string        { return "?" }

// StagingTableName returns "bulk_<dest>_<token>".
func (Dialect) StagingTableName(dest string) string {
	return storage.StagingName("bulk_", dest, 0)
}

type columnInfo struct {
	name string
	typ  string
	pk   int
}

// tableInfo reads pragma_table_info for dest, honouring a schema qualifier.
func tableInfo(ctx context.Context, s *storage.Session, dest string) ([]columnInfo, error) {
	schema, table := storage.SplitTable(dest)
	q, args := `SELECT name, type, pk FROM pragma_table_info(?)`, []any{table}
	if schema != "" {
		q, args = `SELECT name, type, pk FROM pragma_table_info(?, ?)`, []any{table, schema}
	}
	rs, err := s.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	var out []columnInfo
	for rs.Next() {
		var c columnInfo
		if err := rs.Scan(&c.name, &c.typ, &c.pk); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rs.Err()
}

// IdentityColumn reports the rowid alias: a sole INTEGER primary key column.
func (Dialect) IdentityColumn(ctx context.Context, s *storage.Session, dest string) (string, bool, error) {
	cols, err := tableInfo(ctx, s, dest)
	if err != nil {
		return "", false, err
	}
	var pk []columnInfo
	for _, c := range cols {
		if c.pk > 0 {
			pk = append(pk, c)
		}
	}
	if len(pk) == 1 && strings.EqualFold(pk[0].typ, "INTEGER") {
		return pk[0].name, true, nil
	}
	return "", false, nil
}

func (Dialect) ColumnType(ctx context.Context, s *storage.Session, dest, column string) (string, error) {
	cols, err := tableInfo(ctx, s, dest)
	if err != nil {
		return "", err
	}
	for _, c := range cols {
		if strings.EqualFold(c.name, column) {
			return c.typ, nil
		}
	}
	return "", &dberr.Error{
		Kind:    dberr.ErrSchema,
		Op:      "column type",
		Message: fmt.Sprintf("column %s not found in %s", column, dest),
	}
}

func (Dialect) CreateStagingSQL(dest, staging string, columns []string) string {
	return fmt.Sprintf("CREATE TEMP TABLE %s AS SELECT %s FROM %s WHERE 1=0",
		sqIdent(staging), strings.Join(mapIdent(columns), ", "), sqFQN(dest))
}

// AddColumnSQL omits NOT NULL: SQLite rejects a NOT NULL column added
// without a default.
func (Dialect) AddColumnSQL(staging, column, sqlType string) string {
	return strings.TrimSpace(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", sqIdent(staging), sqIdent(column), sqlType))
}

// PrimaryKeySQL expresses the key as a unique index; SQLite cannot add a
// constraint to an existing table.
func (Dialect) PrimaryKeySQL(staging string, keys []string) string {
	return fmt.Sprintf("CREATE UNIQUE INDEX temp.%s ON %s (%s)",
		sqIdent("pk_"+staging), sqIdent(staging), strings.Join(mapIdent(keys), ", "))
}

// UpdateSQL renders
//
//	UPDATE "d" SET "c1" = "s"."c1", ... FROM "s" WHERE ("d"."k1" = "s"."k1") AND ...
//
// Column references use the bare table name, which SQLite resolves in any
// attached schema.
func (Dialect) UpdateSQL(dest, staging string, set, keys []string) string {
	_, bare := storage.SplitTable(dest)
	d, s := sqIdent(bare), sqIdent(staging)
	assign := make([]string, len(set))
	for i, c := range set {
		assign[i] = fmt.Sprintf("%s = %s.%s", sqIdent(c), s, sqIdent(c))
	}
	conds := make([]string, len(keys))
	for i, k := range keys {
		conds[i] = fmt.Sprintf("(%s.%s = %s.%s)", d, sqIdent(k), s, sqIdent(k))
	}
	return fmt.Sprintf("UPDATE %s SET %s FROM %s WHERE %s",
		sqFQN(dest), strings.Join(assign, ", "), s, strings.Join(conds, " AND "))
}

func (Dialect) DropSQL(staging string) string {
	return "DROP TABLE IF EXISTS temp." + sqIdent(staging)
}

// Classify maps "no such table" and "no such column" to dberr.ErrSchema.
// The driver reports both as SQLITE_ERROR, so the message decides.
func (Dialect) Classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "no such table") || strings.Contains(msg, "no such column") {
		return dberr.ErrSchema
	}
	return nil
}

func (Dialect) CreateTableSQL(def ddl.TableDef) (string, error) {
	return ddl.Render(def, ddl.Syntax{
		Name:       "sqlite ddl",
		Quote:      sqIdent,
		QuoteTable: sqFQN,
		// A rowid alias must be declared inline as INTEGER PRIMARY KEY.
		Identity: func(quoted, _ string) (string, bool) {
			return quoted + " INTEGER PRIMARY KEY AUTOINCREMENT", true
		},
		Guard: func(_, create string) string {
			return strings.Replace(create, "CREATE TABLE", "CREATE TABLE IF NOT EXISTS", 1)
		},
	})
}

func sqIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

func sqFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = sqIdent(p)
	}
	return strings.Join(parts, ".")
}

func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = sqIdent(c)
	}
	return out
}
