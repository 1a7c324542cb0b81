// Package postgres implements the Postgres dialect of the staging-table
// protocol using pgx v5 through its database/sql driver. Staging tables are
// session temp tables, rows arrive with COPY, and the destination is
// refreshed with UPDATE ... FROM.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"bulkupdate/internal/dberr"
	"bulkupdate/internal/ddl"
	"bulkupdate/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Identifiers longer than NAMEDATALEN-1 are truncated by the server.
const maxIdentLen = 63

// maxParams is the bind parameter limit of the extended protocol.
const maxParams = 65535

// Dialect is the Postgres storage.Dialect.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

func (Dialect) Kind() string                  { return "postgres" }
func (Dialect) Quote(ident string) string     { return pgIdent(ident) }
func (Dialect) QuoteTable(name string) string { return pgFQN(name) }
func (Dialect) Placeholder(n int) string      { return fmt.Sprintf("$%d", n) }

// StagingTableName returns "bulk_<dest>_<token>", capped at 63 bytes.
func (Dialect) StagingTableName(dest string) string {
	return storage.StagingName("bulk_", dest, maxIdentLen)
}

// identityQuery finds a GENERATED ... AS IDENTITY column, or a serial column
// that owns a sequence.
const identityQuery = `SELECT a.attname
FROM pg_attribute a
WHERE a.attrelid = $1::text::regclass
  AND a.attnum > 0
  AND NOT a.attisdropped
  AND (a.attidentity IN ('a', 'd') OR pg_get_serial_sequence($1::text, a.attname) IS NOT NULL)
ORDER BY a.attnum
LIMIT 1`

func (Dialect) IdentityColumn(ctx context.Context, s *storage.Session, dest string) (string, bool, error) {
	var name string
	err := s.QueryRowContext(ctx, identityQuery, pgFQN(dest)).Scan(&name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return name, true, nil
}

const columnTypeQuery = `SELECT format_type(a.atttypid, a.atttypmod)
FROM pg_attribute a
WHERE a.attrelid = $1::text::regclass
  AND a.attnum > 0
  AND NOT a.attisdropped
  AND lower(a.attname) = lower($2)`

func (Dialect) ColumnType(ctx context.Context, s *storage.Session, dest, column string) (string, error) {
	var typ string
	err := s.QueryRowContext(ctx, columnTypeQuery, pgFQN(dest), column).Scan(&typ)
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
	return fmt.Sprintf("CREATE TEMP TABLE %s AS SELECT %s FROM %s WHERE 1=0",
		pgIdent(staging), strings.Join(mapIdent(columns), ", "), pgFQN(dest))
}

func (Dialect) AddColumnSQL(staging, column, sqlType string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s NOT NULL", pgIdent(staging), pgIdent(column), sqlType)
}

func (Dialect) PrimaryKeySQL(staging string, keys []string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s PRIMARY KEY (%s)",
		pgIdent(staging), pgIdent("pk_"+staging), strings.Join(mapIdent(keys), ", "))
}

// UpdateSQL renders
//
//	UPDATE "d" SET "c1" = "s"."c1", ... FROM "s" WHERE ("d"."k1" = "s"."k1") AND ...
//
// Postgres does not allow a qualified column on the SET side.
func (Dialect) UpdateSQL(dest, staging string, set, keys []string) string {
	d, s := pgFQN(dest), pgIdent(staging)
	assign := make([]string, len(set))
	for i, c := range set {
		assign[i] = fmt.Sprintf("%s = %s.%s", pgIdent(c), s, pgIdent(c))
	}
	return fmt.Sprintf("UPDATE %s SET %s FROM %s WHERE %s",
		d, strings.Join(assign, ", "), s, buildJoinCondition(d, s, keys))
}

func (Dialect) DropSQL(staging string) string {
	return "DROP TABLE IF EXISTS " + pgIdent(staging)
}

// Classify maps undefined_table (42P01) and undefined_column (42703) to
// dberr.ErrSchema.
func (Dialect) Classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42P01", "42703":
			return dberr.ErrSchema
		}
	}
	return nil
}

func (Dialect) CreateTableSQL(def ddl.TableDef) (string, error) {
	return ddl.Render(def, ddl.Syntax{
		Name:       "postgres ddl",
		Quote:      pgIdent,
		QuoteTable: pgFQN,
		Identity: func(quoted, typ string) (string, bool) {
			return quoted + " " + typ + " GENERATED BY DEFAULT AS IDENTITY", false
		},
		Guard: func(_, create string) string {
			return strings.Replace(create, "CREATE TABLE", "CREATE TABLE IF NOT EXISTS", 1)
		},
	})
}

func buildJoinCondition(d, s string, keys []string) string {
	conds := make([]string, 0, len(keys))
	for _, k := range keys {
		conds = append(conds, fmt.Sprintf("(%s.%s = %s.%s)", d, pgIdent(k), s, pgIdent(k)))
	}
	return strings.Join(conds, " AND ")
}

// pgIdent safely quotes a single identifier segment for Postgres.
func pgIdent(id string) string { return pgx.Identifier{id}.Sanitize() }

// pgFQN quotes a possibly schema-qualified name like "public.hr_events" to
// "public"."hr_events". If no dot is present, returns a single quoted ident.
func pgFQN(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

// mapIdent maps a list of column names to their quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgIdent(c)
	}
	return out
}
