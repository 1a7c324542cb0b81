package mssql

import (
	"context"
	"fmt"

	"bulkupdate/internal/storage"

	mssql "github.com/microsoft/go-mssqldb"
)

// CopyFn bulk-copies each batch into table with the TDS bulk load protocol.
// The statement is prepared on the session, so a caller's transaction covers
// the copy too.
func (Dialect) CopyFn(s *storage.Session, table string) storage.CopyFn {
	target := msFQN(table)
	return func(ctx context.Context, columns []string, rows [][]any) (int64, error) {
		if len(rows) == 0 {
			return 0, nil
		}
		stmt, err := s.PrepareContext(ctx, mssql.CopyIn(target, mssql.BulkOptions{}, columns...))
		if err != nil {
			return 0, fmt.Errorf("prepare bulk: %w", err)
		}
		for i := range rows {
			if _, err := stmt.ExecContext(ctx, rows[i]...); err != nil {
				_ = stmt.Close()
				return 0, fmt.Errorf("bulk row %d: %w", i, err)
			}
		}
		res, err := stmt.ExecContext(ctx)
		if cerr := stmt.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			return 0, fmt.Errorf("bulk finalize: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		return n, nil
	}
}
