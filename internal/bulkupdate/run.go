package bulkupdate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bulkupdate/internal/dberr"
	"bulkupdate/internal/metrics"
	"bulkupdate/internal/rows"
	"bulkupdate/internal/storage"
)

// cleanupTimeout bounds the staging drop, which runs even after the caller's
// context is canceled.
const cleanupTimeout = 30 * time.Second

// plan is the validated shape of one run.
type plan struct {
	// keys use the cursor's spelling of each key column.
	keys []string
	// columns are the cursor columns in cursor order.
	columns []string
}

// validate checks everything that can be checked without I/O.
func (u *Updater) validate(cur rows.Cursor) (plan, error) {
	if u.dest == "" {
		return plan{}, dberr.Configf("update", "destination table name is empty")
	}
	if len(u.keys) == 0 {
		return plan{}, dberr.Configf("update", "primary key column list is empty")
	}
	seen := make(map[string]struct{}, len(u.keys))
	for _, k := range u.keys {
		lk := strings.ToLower(k)
		if _, dup := seen[lk]; dup {
			return plan{}, dberr.Configf("update", "duplicate primary key column %q", k)
		}
		seen[lk] = struct{}{}
	}
	if u.batchSize <= 0 {
		return plan{}, dberr.Configf("update", "batch size must be > 0, got %d", u.batchSize)
	}
	if cur == nil {
		return plan{}, dberr.Invalidf("update", "row cursor is nil")
	}
	if err := cur.Err(); err != nil {
		return plan{}, dberr.Wrap("update", "", err, func(error) error { return dberr.ErrInvalidInput })
	}

	p := plan{columns: cur.Columns()}
	for _, k := range u.keys {
		i := rows.Index(p.columns, k)
		if i < 0 {
			return plan{}, dberr.Invalidf("update", "primary key column %q is not in the row cursor %v", k, p.columns)
		}
		p.keys = append(p.keys, p.columns[i])
	}
	if len(setColumns(p.columns, p.keys, "")) == 0 {
		return plan{}, dberr.Invalidf("update", "row cursor has no columns besides the primary key")
	}
	return p, nil
}

// setColumns returns columns minus keys and minus skip, in cursor order.
func setColumns(columns, keys []string, skip string) []string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if rows.Index(keys, c) >= 0 || (skip != "" && strings.EqualFold(c, skip)) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// acquire opens the connection scope for one run. The returned release func
// must be called on every exit path.
func (u *Updater) acquire(ctx context.Context) (*storage.Session, func(), error) {
	switch {
	case u.tx != nil:
		return &storage.Session{Conn: u.conn, Tx: u.tx}, func() {}, nil
	case u.conn != nil:
		return &storage.Session{Conn: u.conn}, func() {}, nil
	case u.db != nil:
		conn, err := u.db.Conn(ctx)
		if err != nil {
			return nil, nil, dberr.Wrap("acquire connection", "", err, u.dialect.Classify)
		}
		return &storage.Session{Conn: conn}, func() { _ = conn.Close() }, nil
	default:
		return nil, nil, dberr.Configf("acquire connection", "updater is closed")
	}
}

func (u *Updater) exec(ctx context.Context, s *storage.Session, op, stmt string) (sql.Result, error) {
	u.log.DebugContext(ctx, "bulkupdate: exec", "op", op, "statement", stmt)
	res, err := s.ExecContext(ctx, stmt)
	if err != nil {
		return nil, dberr.Wrap(op, stmt, err, u.dialect.Classify)
	}
	return res, nil
}

func (u *Updater) jobLabel() string {
	if u.job != "" {
		return u.job
	}
	return u.dest
}

// run is the single implementation behind every entry point.
func (u *Updater) run(ctx context.Context, cur rows.Cursor) (res Result, err error) {
	if cur != nil {
		defer cur.Close()
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	start := time.Now()
	p, err := u.validate(cur)
	if err != nil {
		return res, err
	}

	s, release, err := u.acquire(ctx)
	if err != nil {
		return res, err
	}
	defer release()

	var ownTx *sql.Tx
	if u.implicitTx && u.tx == nil {
		ownTx, err = s.Conn.BeginTx(ctx, nil)
		if err != nil {
			return res, dberr.Wrap("begin", "", err, u.dialect.Classify)
		}
		s.Tx = ownTx
	}

	d := u.dialect
	job := u.jobLabel()
	staging := d.StagingTableName(u.dest)
	res.StagingTable = staging
	created := false
	_, keyed := d.(storage.KeyedStager)

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()

		// A rolled-back implicit transaction discards the staging table too,
		// except on backends whose temporary tables outlive a rollback.
		if created && (ownTx == nil || err == nil || keyed) {
			t0 := time.Now()
			_, derr := u.exec(cleanupCtx, s, "drop staging", d.DropSQL(staging))
			metrics.RecordStep(job, "drop", derr, time.Since(t0))
			if derr != nil {
				if err == nil {
					err = derr
				} else {
					u.log.WarnContext(ctx, "bulkupdate: staging drop failed after an earlier error",
						"staging", staging, "drop_error", derr, "error", err)
				}
			}
		}
		if ownTx != nil {
			if err != nil {
				if rerr := ownTx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
					u.log.WarnContext(ctx, "bulkupdate: rollback failed", "error", rerr)
				}
			} else if cerr := ownTx.Commit(); cerr != nil {
				err = dberr.Wrap("commit", "", cerr, d.Classify)
			}
		}
		res.Elapsed = time.Since(start)
		if err == nil {
			u.log.InfoContext(ctx, "bulkupdate: run complete",
				"destination", u.dest, "staging", staging,
				"loaded", res.Loaded, "updated", res.Updated, "elapsed", res.Elapsed)
		}
	}()

	// Create staging: clone the destination's columns minus its identity
	// column, then add the identity back with its declared type if it is a key.
	t0 := time.Now()
	identity, identityIsKey, err := u.identity(ctx, s, p)
	if err != nil {
		metrics.RecordStep(job, "create_staging", err, time.Since(t0))
		return res, err
	}
	stagingCols := p.columns
	if identity != "" {
		stagingCols = setColumns(p.columns, nil, identity)
	}
	set := setColumns(p.columns, p.keys, identity)
	if len(set) == 0 {
		err = dberr.Invalidf("update", "no columns left to update once identity column %q is excluded", identity)
		metrics.RecordStep(job, "create_staging", err, time.Since(t0))
		return res, err
	}
	err = u.createStaging(ctx, s, staging, stagingCols, p.keys, identity, identityIsKey, &created)
	metrics.RecordStep(job, "create_staging", err, time.Since(t0))
	if err != nil {
		return res, err
	}

	// Bulk load.
	loadCur := cur
	if identity != "" && !identityIsKey {
		loadCur = rows.Without(cur, identity)
	}
	t0 = time.Now()
	u.log.DebugContext(ctx, "bulkupdate: load", "staging", staging, "columns", loadCur.Columns())
	copyFn := d.CopyFn(s, staging)
	var batches int64
	res.Loaded, err = storage.LoadBatches(ctx, loadCur, u.batchSize,
		func(ctx context.Context, columns []string, batch [][]any) (int64, error) {
			batches++
			return copyFn(ctx, columns, batch)
		})
	metrics.RecordStep(job, "load", err, time.Since(t0))
	metrics.RecordBatches(job, batches)
	metrics.RecordRow(job, "staged", res.Loaded)
	if err != nil {
		return res, dberr.Wrap("load", "", err, d.Classify)
	}

	if u.hook != nil {
		t0 = time.Now()
		err = u.hook(ctx, s.Conn, s.Tx, staging)
		metrics.RecordStep(job, "hook", err, time.Since(t0))
		if err != nil {
			return res, fmt.Errorf("hook: %w", err)
		}
	}

	t0 = time.Now()
	r, err := u.exec(ctx, s, "update", d.UpdateSQL(u.dest, staging, set, p.keys))
	if err == nil {
		res.Updated, err = r.RowsAffected()
		if err != nil {
			err = dberr.Wrap("update", "", err, d.Classify)
		}
	}
	metrics.RecordStep(job, "update", err, time.Since(t0))
	metrics.RecordRow(job, "updated", res.Updated)
	return res, err
}

// identity reports the destination's identity column when the cursor carries
// it, and whether it is one of the keys.
func (u *Updater) identity(ctx context.Context, s *storage.Session, p plan) (string, bool, error) {
	col, ok, err := u.dialect.IdentityColumn(ctx, s, u.dest)
	if err != nil {
		return "", false, dberr.Wrap("identity column", "", err, u.dialect.Classify)
	}
	if !ok {
		return "", false, nil
	}
	i := rows.Index(p.columns, col)
	if i < 0 {
		return "", false, nil
	}
	col = p.columns[i]
	u.log.DebugContext(ctx, "bulkupdate: identity column", "destination", u.dest, "column", col)
	return col, rows.Index(p.keys, col) >= 0, nil
}

func (u *Updater) createStaging(
	ctx context.Context,
	s *storage.Session,
	staging string,
	columns, keys []string,
	identity string,
	identityIsKey bool,
	created *bool,
) error {
	d := u.dialect
	if ks, ok := d.(storage.KeyedStager); ok {
		var col, typ string
		if identityIsKey {
			var err error
			if typ, err = d.ColumnType(ctx, s, u.dest, identity); err != nil {
				return dberr.Wrap("column type", "", err, d.Classify)
			}
			col = identity
		}
		stmt := ks.CreateKeyedStagingSQL(u.dest, staging, columns, keys, col, typ)
		if _, err := u.exec(ctx, s, "create staging", stmt); err != nil {
			return err
		}
		*created = true
		return nil
	}

	if _, err := u.exec(ctx, s, "create staging", d.CreateStagingSQL(u.dest, staging, columns)); err != nil {
		return err
	}
	*created = true

	if identityIsKey {
		typ, err := d.ColumnType(ctx, s, u.dest, identity)
		if err != nil {
			return dberr.Wrap("column type", "", err, d.Classify)
		}
		if _, err := u.exec(ctx, s, "add identity column", d.AddColumnSQL(staging, identity, typ)); err != nil {
			return err
		}
	}
	_, err := u.exec(ctx, s, "add primary key", d.PrimaryKeySQL(staging, keys))
	return err
}
