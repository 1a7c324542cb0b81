// Package storage contains the backend-agnostic half of the staging-table
// protocol: the Session a run executes on, the Dialect contract, the backend
// registry, and a batched loader that drains a row cursor into a CopyFn.
//
// Backends (SQL Server, Postgres, SQLite, MySQL) implement CopyFn with their
// most efficient primitive (bulk copy, COPY, prepared or multi-row INSERT).
//
// Logging: on every successful flush, a concise progress line is emitted with
// running totals and instantaneous rows/sec since the previous flush.
package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"bulkupdate/internal/rows"
)

// CopyFn abstracts a backend's bulk insert capability. Implementations should
// insert the provided rows (aligned to 'columns' order) and return the number
// of rows reported as inserted. The function should be safe for repeated calls
// and cancel promptly when ctx is done.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// LoadBatches drains cur, groups its rows into batches of size 'batchSize',
// and calls 'copyFn' for each non-empty batch. It returns the total number of
// rows reported by copyFn and the first error encountered, including the
// cursor's own error.
//
// Cancellation: returns (total, ctx.Err()) when canceled. Progress is logged on
// each successful flush.
func LoadBatches(
	ctx context.Context,
	cur rows.Cursor,
	batchSize int,
	copyFn CopyFn,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batchSize must be > 0")
	}
	if copyFn == nil {
		return 0, fmt.Errorf("copyFn must not be nil")
	}
	if cur == nil {
		return 0, fmt.Errorf("cursor must not be nil")
	}

	columns := cur.Columns()
	var (
		total       int64
		batches     int64
		batch       = make([][]any, 0, batchSize)
		start       = time.Now()
		lastFlushTS = start
		lastTotal   int64
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := copyFn(ctx, columns, batch)
		total += n

		// Rows are freshly allocated per batch, so the slice can be reused.
		batch = batch[:0]

		if err != nil {
			log.Printf("loader: COPY failed after=%d total=%d err=%v", n, total, err)

			return err
		}

		// Progress log per successful batch.
		batches++
		now := time.Now()
		sinceLast := now.Sub(lastFlushTS)
		insertedSinceLast := total - lastTotal
		rps := float64(0)
		if sinceLast > 0 {
			rps = float64(insertedSinceLast) / sinceLast.Seconds()
		}
		log.Printf(
			"batch #%d: rps=%.0f inserted=%d total_inserted=%d elapsed=%s since_last=%s",
			batches,
			rps,
			n,
			total,
			now.Sub(start).Truncate(time.Millisecond),
			sinceLast.Truncate(time.Millisecond),
		)
		lastFlushTS = now
		lastTotal = total

		return nil
	}

	for cur.Next() {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		row := make([]any, len(columns))
		for i := range row {
			row[i] = cur.Value(i)
		}
		batch = append(batch, row)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := cur.Err(); err != nil {
		log.Printf("loader: source failed total_inserted=%d err=%v", total, err)
		return total, fmt.Errorf("read rows: %w", err)
	}
	pending := len(batch)
	if err := flush(); err != nil {
		return total, err
	}
	log.Printf("loader: input drained, final_flush=%d total_inserted=%d", pending, total)

	return total, nil
}
