// Package bulkupdate updates existing rows of a destination table from a row
// cursor in four set-based steps: clone the destination's shape into a
// uniquely named staging table, bulk-load the rows into it, run one
// correlated UPDATE against the destination joined on the caller's key
// columns, and drop the staging table. Rows whose key is not already in the
// destination are ignored; the pipeline never inserts.
//
// The SQL for each backend comes from a storage.Dialect looked up by kind, so
// the orchestration here is written once.
package bulkupdate

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"bulkupdate/internal/dberr"
	"bulkupdate/internal/rows"
	"bulkupdate/internal/storage"
)

// DefaultBatchSize is the number of rows handed to the bulk loader at once.
const DefaultBatchSize = 5000

// Hook is invoked once per run after the bulk load and before the UPDATE,
// with the staging table's unquoted name. conn is nil when the pipeline only
// holds a caller transaction begun from a pool; tx is nil when no
// transaction is active.
type Hook func(ctx context.Context, conn *sql.Conn, tx *sql.Tx, stagingTable string) error

// Result summarizes one completed run.
type Result struct {
	StagingTable string
	// Loaded is the number of rows the bulk loader reported.
	Loaded int64
	// Updated is the number of destination rows the UPDATE affected.
	Updated int64
	Elapsed time.Duration
}

// Outcome is delivered by the asynchronous entry points.
type Outcome struct {
	Result Result
	Err    error
}

// Updater runs the bulk-update pipeline against one destination table. It is
// safe for concurrent use; runs on one Updater are serialized.
type Updater struct {
	mu sync.Mutex

	dialect storage.Dialect

	db     *sql.DB
	conn   *sql.Conn
	ownsDB bool

	dest       string
	keys       []string
	tx         *sql.Tx
	implicitTx bool
	hook       Hook
	batchSize  int
	job        string
	log        *slog.Logger
}

// Option configures an Updater.
type Option func(*Updater)

// WithDestination sets the destination table, optionally schema-qualified.
func WithDestination(table string) Option {
	return func(u *Updater) { u.dest = strings.TrimSpace(table) }
}

// WithPrimaryKey sets the key columns from a comma and/or space separated
// list such as "OrderId, Line".
func WithPrimaryKey(spec string) Option {
	return func(u *Updater) { u.keys = parseKeys(spec) }
}

// WithPrimaryKeyColumns sets the key columns from a slice.
func WithPrimaryKeyColumns(cols ...string) Option {
	return func(u *Updater) {
		u.keys = u.keys[:0:0]
		for _, c := range cols {
			u.keys = append(u.keys, parseKeys(c)...)
		}
	}
}

// WithTransaction enlists every statement in tx. The Updater never commits
// or rolls back a caller's transaction.
func WithTransaction(tx *sql.Tx) Option {
	return func(u *Updater) { u.tx = tx }
}

// WithImplicitTransaction wraps each run in a transaction the Updater owns:
// committed on success, rolled back on any failure. Ignored when an external
// transaction is set.
func WithImplicitTransaction(on bool) Option {
	return func(u *Updater) { u.implicitTx = on }
}

func WithHook(h Hook) Option {
	return func(u *Updater) { u.hook = h }
}

// WithLogger sets the structured logger. nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(u *Updater) {
		if l != nil {
			u.log = l
		}
	}
}

func WithBatchSize(n int) Option {
	return func(u *Updater) { u.batchSize = n }
}

// WithJob sets the job label attached to metrics. Defaults to the destination.
func WithJob(name string) Option {
	return func(u *Updater) { u.job = name }
}

func newUpdater(kind string, opts []Option) (*Updater, error) {
	b, err := storage.Lookup(kind)
	if err != nil {
		return nil, err
	}
	u := &Updater{
		dialect:   b.Dialect,
		batchSize: DefaultBatchSize,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// New returns an Updater that acquires one connection from db per run and
// releases it when the run ends. kind names a registered storage backend.
func New(db *sql.DB, kind string, opts ...Option) (*Updater, error) {
	if db == nil {
		return nil, dberr.Configf("new", "db must not be nil")
	}
	u, err := newUpdater(kind, opts)
	if err != nil {
		return nil, err
	}
	u.db = db
	return u, nil
}

// NewWithConn returns an Updater that runs on a caller-owned connection.
// Close leaves conn open.
func NewWithConn(conn *sql.Conn, kind string, opts ...Option) (*Updater, error) {
	if conn == nil {
		return nil, dberr.Configf("new", "conn must not be nil")
	}
	u, err := newUpdater(kind, opts)
	if err != nil {
		return nil, err
	}
	u.conn = conn
	return u, nil
}

// Open connects to dsn with the backend registered for kind. The returned
// Updater owns the pool; Close closes it.
func Open(ctx context.Context, kind, dsn string, opts ...Option) (*Updater, error) {
	db, _, err := storage.Open(ctx, kind, dsn)
	if err != nil {
		return nil, err
	}
	u, err := New(db, kind, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	u.ownsDB = true
	return u, nil
}

// Close releases the pool if the Updater opened it. Caller-supplied pools and
// connections are left open.
func (u *Updater) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.ownsDB && u.db != nil {
		err := u.db.Close()
		u.db = nil
		return err
	}
	return nil
}

// Destination returns the destination table name.
func (u *Updater) Destination() string { return u.dest }

// PrimaryKeyColumn returns the key columns joined with ", ".
func (u *Updater) PrimaryKeyColumn() string { return strings.Join(u.keys, ", ") }

func (u *Updater) PrimaryKeyColumns() []string { return append([]string(nil), u.keys...) }

// ExternalTransaction returns the caller transaction, or nil.
func (u *Updater) ExternalTransaction() *sql.Tx { return u.tx }

// Update runs the pipeline on the calling goroutine. The cursor is closed
// before Update returns.
func (u *Updater) Update(ctx context.Context, cur rows.Cursor) (Result, error) {
	return u.run(ctx, cur)
}

// UpdateTable runs the pipeline over an in-memory table.
func (u *Updater) UpdateTable(ctx context.Context, t *rows.Table) (Result, error) {
	return u.run(ctx, tableCursor(t))
}

// UpdateAsync runs the pipeline in a new goroutine. Exactly one Outcome is
// sent on the returned channel, which is then closed.
func (u *Updater) UpdateAsync(ctx context.Context, cur rows.Cursor) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		res, err := u.run(ctx, cur)
		out <- Outcome{Result: res, Err: err}
	}()
	return out
}

// UpdateTableAsync is the asynchronous form of UpdateTable.
func (u *Updater) UpdateTableAsync(ctx context.Context, t *rows.Table) <-chan Outcome {
	return u.UpdateAsync(ctx, tableCursor(t))
}

// tableCursor keeps a nil *rows.Table a nil-source error rather than a nil
// interface, so both overloads report it the same way.
func tableCursor(t *rows.Table) rows.Cursor {
	return rows.FromTable(t)
}

// parseKeys splits "a, b c" into [a b c].
func parseKeys(spec string) []string {
	return strings.FieldsFunc(spec, func(r rune) bool { return r == ',' || unicode.IsSpace(r) })
}
