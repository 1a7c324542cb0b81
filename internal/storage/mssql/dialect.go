// Package mssql implements the SQL Server dialect of the staging-table
// protocol on top of go-mssqldb: a "#" temp table cloned with SELECT ... INTO,
// a nonclustered primary key over the caller's key columns, bulk copy into
// the temp table, and a correlated UPDATE ... FROM ... INNER JOIN.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"bulkupdate/internal/dberr"
	"bulkupdate/internal/ddl"
	"bulkupdate/internal/storage"

	mssql "github.com/microsoft/go-mssqldb"
)

// Temp table names may be at most 116 characters.
const maxTempNameLen = 116

// tempPrefix marks a session-local temporary table.
const tempPrefix = "#"

// Dialect is the SQL Server storage.Dialect.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

func (Dialect) Kind() string                  { return "mssql" }
func (Dialect) Quote(ident string) string     { return msIdent(ident) }
func (Dialect) QuoteTable(name string) string { return msFQN(name) }
func (Dialect) Placeholder(n int) string      { return fmt.Sprintf("@p%d", n) }

// StagingTableName returns "#<dest>_<token>".
func (Dialect) StagingTableName(dest string) string {
	return storage.StagingName(tempPrefix, dest, maxTempNameLen)
}

const identityQuery = `SELECT name FROM sys.identity_columns WHERE object_id = OBJECT_ID(@p1)`

func (Dialect) IdentityColumn(ctx context.Context, s *storage.Session, dest string) (string, bool, error) {
	var name string
	err := s.QueryRowContext(ctx, identityQuery, msFQN(dest)).Scan(&name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return name, true, nil
}

// columnTypeQuery resolves dest through OBJECT_ID like identityQuery, so an
// unqualified name binds to the same object in both lookups.
const columnTypeQuery = `SELECT TYPE_NAME(c.system_type_id), COLUMNPROPERTY(c.object_id, c.name, 'charmaxlen'), c.precision, c.scale
FROM sys.columns c
WHERE c.object_id = OBJECT_ID(@p1) AND c.name = @p2`

func (Dialect) ColumnType(ctx context.Context, s *storage.Session, dest, column string) (string, error) {
	var (
		dataType         string
		maxLen, prec, sc sql.NullInt64
	)
	err := s.QueryRowContext(ctx, columnTypeQuery, msFQN(dest), column).
		Scan(&dataType, &maxLen, &prec, &sc)
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
	return renderType(dataType, maxLen, prec, sc), nil
}

// renderType turns sys.columns metadata into a column type such as
// [int], [decimal](18, 0) or [nvarchar](max).
func renderType(dataType string, maxLen, prec, scale sql.NullInt64) string {
	t := strings.ToLower(dataType)
	switch t {
	case "decimal", "numeric":
		if prec.Valid {
			return fmt.Sprintf("%s(%d, %d)", msIdent(t), prec.Int64, scale.Int64)
		}
	case "char", "varchar", "nchar", "nvarchar", "binary", "varbinary":
		if maxLen.Valid {
			if maxLen.Int64 < 0 {
				return msIdent(t) + "(max)"
			}
			return fmt.Sprintf("%s(%d)", msIdent(t), maxLen.Int64)
		}
	}
	return msIdent(t)
}

func (Dialect) CreateStagingSQL(dest, staging string, columns []string) string {
	return fmt.Sprintf("SELECT %s INTO %s FROM %s WHERE 1=0",
		strings.Join(mapIdent(columns), ", "), msIdent(staging), msFQN(dest))
}

func (Dialect) AddColumnSQL(staging, column, sqlType string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD %s %s NOT NULL", msIdent(staging), msIdent(column), sqlType)
}

// PrimaryKeySQL names the constraint PK_<staging without the temp marker>.
func (Dialect) PrimaryKeySQL(staging string, keys []string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s PRIMARY KEY NONCLUSTERED (%s)",
		msIdent(staging),
		msIdent("PK_"+strings.TrimLeft(staging, tempPrefix)),
		strings.Join(mapIdent(keys), ", "))
}

// UpdateSQL renders
//
//	UPDATE [d]
//	SET [d].[c1] = [s].[c1], ...
//	FROM [d]
//	INNER JOIN [s] ON ([d].[k1] = [s].[k1]) AND ...
func (Dialect) UpdateSQL(dest, staging string, set, keys []string) string {
	d, s := msFQN(dest), msIdent(staging)
	assign := make([]string, len(set))
	for i, c := range set {
		assign[i] = fmt.Sprintf("%s.%s = %s.%s", d, msIdent(c), s, msIdent(c))
	}
	return fmt.Sprintf("UPDATE %s\nSET %s\nFROM %s\nINNER JOIN %s ON %s",
		d, strings.Join(assign, ", "), d, s, buildJoinCondition(d, s, keys))
}

func (Dialect) DropSQL(staging string) string {
	return "DROP TABLE " + msIdent(staging)
}

// Classify maps "Invalid object name" (208) and "Invalid column name" (207)
// to dberr.ErrSchema.
func (Dialect) Classify(err error) error {
	var me mssql.Error
	if errors.As(err, &me) {
		switch me.Number {
		case 208, 207:
			return dberr.ErrSchema
		}
	}
	return nil
}

func (Dialect) CreateTableSQL(def ddl.TableDef) (string, error) {
	return ddl.Render(def, ddl.Syntax{
		Name:       "mssql ddl",
		Quote:      msIdent,
		QuoteTable: msFQN,
		Identity: func(quoted, typ string) (string, bool) {
			return quoted + " " + typ + " IDENTITY(1,1) NOT NULL", false
		},
		// T-SQL has no CREATE TABLE IF NOT EXISTS.
		Guard: func(table, create string) string {
			return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n  %s;\nEND;",
				strings.ReplaceAll(table, "'", "''"), create)
		},
	})
}

// buildJoinCondition builds "([d].[k] = [s].[k]) AND ..." for the key columns.
func buildJoinCondition(d, s string, keys []string) string {
	conds := make([]string, 0, len(keys))
	for _, k := range keys {
		conds = append(conds, fmt.Sprintf("(%s.%s = %s.%s)", d, msIdent(k), s, msIdent(k)))
	}
	return strings.Join(conds, " AND ")
}

// msIdent safely quotes a SQL Server identifier using [brackets], escaping ].
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// msFQN quotes a possibly schema-qualified name like "dbo.hr_events" to
// "[dbo].[hr_events]". Already bracketed parts are kept as they are.
func msFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, "[") && strings.HasSuffix(p, "]") {
			parts[i] = p
			continue
		}
		parts[i] = msIdent(p)
	}
	return strings.Join(parts, ".")
}

func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = msIdent(c)
	}
	return out
}
