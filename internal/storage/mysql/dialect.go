// Package mysql implements the MySQL dialect of the staging-table protocol on
// go-sql-driver/mysql: a session TEMPORARY table, multi-row INSERT loading,
// and a multi-table UPDATE ... INNER JOIN.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"bulkupdate/internal/dberr"
	"bulkupdate/internal/ddl"
	"bulkupdate/internal/storage"

	"github.com/go-sql-driver/mysql"
)

const (
	// maxIdentLen is MySQL's identifier length limit.
	maxIdentLen = 64
	// maxParams is the prepared statement placeholder limit.
	maxParams = 65535
)

// Dialect is the MySQL storage.Dialect.
type Dialect struct{}

var (
	_ storage.Dialect     = Dialect{}
	_ storage.KeyedStager = Dialect{}
)

func (Dialect) Kind() string                  { return "mysql" }
func (Dialect) Quote(ident string) string     { return myIdent(ident) }
func (Dialect) QuoteTable(name string) string { return myFQN(name) }
func (Dialect) Placeholder(int) string        { return "?" }

func (Dialect) StagingTableName(dest string) string {
	return storage.StagingName("bulk_", dest, maxIdentLen)
}

const identityQuery = `SELECT COLUMN_NAME
FROM information_schema.COLUMNS
WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE())
  AND TABLE_NAME = ?
  AND EXTRA LIKE '%auto_increment%'
LIMIT 1`

func (Dialect) IdentityColumn(ctx context.Context, s *storage.Session, dest string) (string, bool, error) {
	schema, table := storage.SplitTable(dest)
	var name string
	err := s.QueryRowContext(ctx, identityQuery, schema, table).Scan(&name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return name, true, nil
}

const columnTypeQuery = `SELECT COLUMN_TYPE
FROM information_schema.COLUMNS
WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE())
  AND TABLE_NAME = ?
  AND LOWER(COLUMN_NAME) = LOWER(?)`

func (Dialect) ColumnType(ctx context.Context, s *storage.Session, dest, column string) (string, error) {
	schema, table := storage.SplitTable(dest)
	var typ string
	err := s.QueryRowContext(ctx, columnTypeQuery, schema, table, column).Scan(&typ)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &dberr.Error{
			Kind:      dberr.ErrSchema,
			Op:        "column type",
			Statement: columnTypeQuery,
			Message:   fmt.Sprintf("column %s not found in %s", column, dest),
		}
	}
	if err != nil {
		return "", err
	}
	return typ, nil
}

func (Dialect) CreateStagingSQL(dest, staging string, columns []string) string {
	return fmt.Sprintf("CREATE TEMPORARY TABLE %s AS SELECT %s FROM %s WHERE 1=0",
		myIdent(staging), strings.Join(mapIdent(columns), ", "), myFQN(dest))
}

// CreateKeyedStagingSQL renders
//
//	CREATE TEMPORARY TABLE s (id T NOT NULL, PRIMARY KEY (k1, ...)) SELECT cols FROM d WHERE 1=0
//
// MySQL commits implicitly on ALTER TABLE, even for a TEMPORARY table, while
// CREATE TEMPORARY TABLE leaves the transaction open.
func (Dialect) CreateKeyedStagingSQL(dest, staging string, columns, keys []string, identity, identityType string) string {
	var defs []string
	if identity != "" {
		defs = append(defs, myIdent(identity)+" "+identityType+" NOT NULL")
	}
	defs = append(defs, "PRIMARY KEY ("+strings.Join(mapIdent(keys), ", ")+")")
	return fmt.Sprintf("CREATE TEMPORARY TABLE %s (%s) SELECT %s FROM %s WHERE 1=0",
		myIdent(staging), strings.Join(defs, ", "), strings.Join(mapIdent(columns), ", "), myFQN(dest))
}

// AddColumnSQL and PrimaryKeySQL are empty: both are declared by
// CreateKeyedStagingSQL.
func (Dialect) AddColumnSQL(string, string, string) string { return "" }
func (Dialect) PrimaryKeySQL(string, []string) string      { return "" }

// UpdateSQL renders
//
//	UPDATE d INNER JOIN s ON (d.k1 = s.k1) AND ... SET d.c1 = s.c1, ...
func (Dialect) UpdateSQL(dest, staging string, set, keys []string) string {
	d, s := myFQN(dest), myIdent(staging)
	conds := make([]string, len(keys))
	for i, k := range keys {
		conds[i] = fmt.Sprintf("(%s.%s = %s.%s)", d, myIdent(k), s, myIdent(k))
	}
	assign := make([]string, len(set))
	for i, c := range set {
		assign[i] = fmt.Sprintf("%s.%s = %s.%s", d, myIdent(c), s, myIdent(c))
	}
	return fmt.Sprintf("UPDATE %s INNER JOIN %s ON %s SET %s",
		d, s, strings.Join(conds, " AND "), strings.Join(assign, ", "))
}

func (Dialect) DropSQL(staging string) string {
	return "DROP TEMPORARY TABLE IF EXISTS " + myIdent(staging)
}

// Classify maps ER_NO_SUCH_TABLE (1146) and ER_BAD_FIELD_ERROR (1054) to
// dberr.ErrSchema.
func (Dialect) Classify(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case 1146, 1054:
			return dberr.ErrSchema
		}
	}
	return nil
}

func (Dialect) CreateTableSQL(def ddl.TableDef) (string, error) {
	return ddl.Render(def, ddl.Syntax{
		Name:       "mysql ddl",
		Quote:      myIdent,
		QuoteTable: myFQN,
		Identity: func(quoted, typ string) (string, bool) {
			return quoted + " " + typ + " NOT NULL AUTO_INCREMENT", false
		},
		Guard: func(_, create string) string {
			return strings.Replace(create, "CREATE TABLE", "CREATE TABLE IF NOT EXISTS", 1)
		},
	})
}

// CopyFn loads batches with multi-row INSERT statements.
func (d Dialect) CopyFn(s *storage.Session, table string) storage.CopyFn {
	return storage.MultiRowCopyFn(d, s, table, maxParams)
}

func myIdent(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }

func myFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = myIdent(p)
	}
	return strings.Join(parts, ".")
}

func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = myIdent(c)
	}
	return out
}
