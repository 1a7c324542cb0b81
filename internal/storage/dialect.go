package storage

import (
	"context"
	"fmt"
	"strings"

	"bulkupdate/internal/ddl"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
)

// Dialect is the backend-specific half of the staging-table protocol. The
// orchestrator owns the sequence; a Dialect only renders SQL, answers schema
// questions, and knows its backend's bulk-copy primitive.
type Dialect interface {
	Quoter
	Kind() string

	// StagingTableName derives a unique, unquoted staging table name for dest.
	StagingTableName(dest string) string

	// IdentityColumn reports dest's identity/auto-increment column, if any.
	IdentityColumn(ctx context.Context, s *Session, dest string) (string, bool, error)
	// ColumnType returns the declared type of column in dest, ready to be
	// used in an ADD COLUMN clause.
	ColumnType(ctx context.Context, s *Session, dest, column string) (string, error)

	CreateStagingSQL(dest, staging string, columns []string) string
	AddColumnSQL(staging, column, sqlType string) string
	PrimaryKeySQL(staging string, keys []string) string
	UpdateSQL(dest, staging string, set, keys []string) string
	DropSQL(staging string) string

	// CopyFn returns the bulk loader for table on s. table is unquoted.
	CopyFn(s *Session, table string) CopyFn

	// Classify maps a driver error to dberr.ErrSchema when the backend
	// reports a missing object, and returns nil otherwise.
	Classify(err error) error

	// CreateTableSQL renders an idempotent CREATE TABLE for def.
	CreateTableSQL(def ddl.TableDef) (string, error)
}

// KeyedStager is implemented by dialects whose ALTER TABLE ends the open
// transaction. The orchestrator creates the staging table with its key in a
// single statement and skips AddColumnSQL and PrimaryKeySQL. A rollback on
// these backends keeps temporary tables, so staging is always dropped
// explicitly.
type KeyedStager interface {
	// CreateKeyedStagingSQL clones columns from dest and declares keys as the
	// primary key. A non-empty identity is added as identityType NOT NULL.
	CreateKeyedStagingSQL(dest, staging string, columns, keys []string, identity, identityType string) string
}

// Quoter is the identifier and parameter syntax of a backend.
type Quoter interface {
	// Quote quotes a single identifier; QuoteTable quotes a dotted name.
	Quote(ident string) string
	QuoteTable(name string) string
	// Placeholder returns the n-th (1-based) bind parameter marker.
	Placeholder(n int) string
}

// StagingName builds "<prefix><dest>_<token>" where dest has its separators
// flattened to '_'. Names longer than max are cut and suffixed with an xxh3
// digest of the full name so two long destinations still differ.
func StagingName(prefix, dest string, max int) string {
	base := strings.NewReplacer(".", "_", "[", "", "]", "", `"`, "", "`", "", " ", "_").Replace(dest)
	name := prefix + base + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if max <= 0 || len(name) <= max {
		return name
	}
	sum := fmt.Sprintf("_%016x", xxh3.HashString(name))
	return name[:max-len(sum)] + sum
}

// SplitTable splits "schema.table" into its parts. A bare name yields an
// empty schema.
func SplitTable(name string) (schema, table string) {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// InsertValuesSQL renders a multi-row INSERT with nRows groups of
// len(columns) placeholders.
func InsertValuesSQL(d Quoter, table string, columns []string, nRows int) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.Quote(c)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", d.QuoteTable(table), strings.Join(quoted, ", "))
	n := 1
	for r := 0; r < nRows; r++ {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for c := range columns {
			if c > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(d.Placeholder(n))
			n++
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

// MultiRowCopyFn loads a batch with multi-row INSERT statements, keeping each
// statement under maxParams bind parameters. It suits backends without a
// native copy protocol on database/sql.
func MultiRowCopyFn(d Quoter, s *Session, table string, maxParams int) CopyFn {
	return func(ctx context.Context, columns []string, rows [][]any) (int64, error) {
		if len(rows) == 0 || len(columns) == 0 {
			return 0, nil
		}
		per := maxParams / len(columns)
		if per < 1 {
			per = 1
		}
		var total int64
		for start := 0; start < len(rows); start += per {
			end := start + per
			if end > len(rows) {
				end = len(rows)
			}
			chunk := rows[start:end]
			args := make([]any, 0, len(chunk)*len(columns))
			for _, r := range chunk {
				args = append(args, r...)
			}
			stmt := InsertValuesSQL(d, table, columns, len(chunk))
			if _, err := s.ExecContext(ctx, stmt, args...); err != nil {
				return total, fmt.Errorf("insert rows %d-%d: %w", start, end-1, err)
			}
			total += int64(len(chunk))
		}
		return total, nil
	}
}
