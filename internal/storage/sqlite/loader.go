package sqlite

import (
	"context"
	"fmt"
	"strings"

	"bulkupdate/internal/storage"
)

// CopyFn inserts each batch through one prepared INSERT statement on the
// session. The caller's transaction, if any, covers the inserts; otherwise
// each batch runs under autocommit.
func (Dialect) CopyFn(s *storage.Session, table string) storage.CopyFn {
	return func(ctx context.Context, columns []string, rows [][]any) (int64, error) {
		if len(columns) == 0 {
			return 0, fmt.Errorf("sqlite: CopyFn: columns must not be empty")
		}
		if len(rows) == 0 {
			return 0, nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
		stmtSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			sqFQN(table), strings.Join(mapIdent(columns), ", "), placeholders)

		stmt, err := s.PrepareContext(ctx, stmtSQL)
		if err != nil {
			return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
		}
		defer stmt.Close()

		var inserted int64
		for _, row := range rows {
			if len(row) != len(columns) {
				return inserted, fmt.Errorf("sqlite: CopyFn: row length %d != columns length %d", len(row), len(columns))
			}
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				return inserted, fmt.Errorf("sqlite: insert: %w", err)
			}
			inserted++
		}
		return inserted, nil
	}
}
