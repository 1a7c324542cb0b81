package postgres

import (
	"context"
	"errors"
	"fmt"

	"bulkupdate/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
)

// CopyFn streams each batch with COPY FROM STDIN on the session's underlying
// pgx connection. Sessions that only carry a transaction fall back to
// multi-row INSERT statements, which still run inside that transaction.
func (d Dialect) CopyFn(s *storage.Session, table string) storage.CopyFn {
	fallback := storage.MultiRowCopyFn(d, s, table, maxParams)
	return func(ctx context.Context, columns []string, rows [][]any) (int64, error) {
		if len(rows) == 0 {
			return 0, nil
		}
		var n int64
		err := s.Raw(func(driverConn any) error {
			c, ok := driverConn.(*stdlib.Conn)
			if !ok {
				return fmt.Errorf("postgres: unexpected driver connection %T", driverConn)
			}
			var err error
			n, err = c.Conn().CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
			return err
		})
		if errors.Is(err, storage.ErrNoConn) {
			return fallback(ctx, columns, rows)
		}
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Detail != "" {
				return n, fmt.Errorf("copy into %s: %s (%s): %w", table, pgErr.Detail, pgErr.SQLState(), err)
			}
			return n, fmt.Errorf("copy into %s: %w", table, err)
		}
		return n, nil
	}
}
