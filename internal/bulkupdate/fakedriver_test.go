package bulkupdate

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
)

// recorder is a database/sql backend that records every statement it sees
// and answers the mssql dialect's schema queries from its fields.
type recorder struct {
	mu sync.Mutex

	stmts    []string
	connects int

	// identity is the name returned by the identity lookup; "" means none.
	identity string
	// dataType is returned by the column type lookup.
	dataType string
	// typeArgs are the arguments of the last column type lookup.
	typeArgs []any
	// fail maps a statement substring to the error returned by the first
	// statement that contains it.
	fail map[string]error
	// updated is the RowsAffected of an UPDATE.
	updated int64

	bulkRows int64
}

// Statement labels recorded for non-SQL events.
const (
	stmtBegin    = "BEGIN"
	stmtCommit   = "COMMIT"
	stmtRollback = "ROLLBACK"
	stmtBulk     = "BULK COPY"
)

func newRecorder() *recorder {
	return &recorder{dataType: "int", updated: 1}
}

// open returns a pool backed by r.
func (r *recorder) open(t *testing.T) *sql.DB {
	t.Helper()
	db := sql.OpenDB(connector{r})
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func (r *recorder) record(stmt string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stmts = append(r.stmts, stmt)
	for sub, err := range r.fail {
		if strings.Contains(stmt, sub) {
			delete(r.fail, sub)
			return err
		}
	}
	return nil
}

// failWith arranges for the first statement containing sub to fail.
func (r *recorder) failWith(sub string, err error) *recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail == nil {
		r.fail = map[string]error{}
	}
	r.fail[sub] = err
	return r
}

func (r *recorder) statements() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.stmts...)
}

func (r *recorder) setTypeArgs(args []driver.NamedValue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typeArgs = r.typeArgs[:0]
	for _, a := range args {
		r.typeArgs = append(r.typeArgs, a.Value)
	}
}

func (r *recorder) lookupArgs() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.typeArgs...)
}

func (r *recorder) connections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects
}

// kinds reduces the recorded statements to their leading keyword(s), which
// keeps order assertions readable.
func (r *recorder) kinds() []string {
	var out []string
	for _, s := range r.statements() {
		switch {
		case strings.Contains(s, "sys.identity_columns"), strings.Contains(s, "auto_increment"):
			out = append(out, "IDENTITY?")
		case strings.Contains(s, "sys.columns"), strings.Contains(s, "COLUMN_TYPE"):
			out = append(out, "TYPE?")
		case strings.HasPrefix(s, "SELECT") && strings.Contains(s, " INTO "),
			strings.HasPrefix(s, "CREATE"):
			out = append(out, "CREATE")
		case strings.HasPrefix(s, "INSERT"):
			out = append(out, "INSERT")
		case strings.Contains(s, "PRIMARY KEY"):
			out = append(out, "PK")
		case strings.HasPrefix(s, "ALTER TABLE"):
			out = append(out, "ADD")
		case strings.HasPrefix(s, "UPDATE"):
			out = append(out, "UPDATE")
		case strings.HasPrefix(s, "DROP"):
			out = append(out, "DROP")
		default:
			out = append(out, s)
		}
	}
	return out
}

type connector struct{ r *recorder }

func (c connector) Connect(context.Context) (driver.Conn, error) {
	c.r.mu.Lock()
	c.r.connects++
	c.r.mu.Unlock()
	return &fakeConn{r: c.r}, nil
}

func (c connector) Driver() driver.Driver { return fakeDriver{} }

type fakeDriver struct{}

func (fakeDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("fake driver: use sql.OpenDB")
}

type fakeConn struct{ r *recorder }

var (
	_ driver.ExecerContext  = (*fakeConn)(nil)
	_ driver.QueryerContext = (*fakeConn)(nil)
	_ driver.ConnBeginTx    = (*fakeConn)(nil)
)

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	if err := c.r.record(stmtBulk); err != nil {
		return nil, err
	}
	return &bulkStmt{r: c.r}, nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *fakeConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if err := c.r.record(stmtBegin); err != nil {
		return nil, err
	}
	return fakeTx{c.r}, nil
}

func (c *fakeConn) ExecContext(ctx context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.r.record(query); err != nil {
		return nil, err
	}
	if strings.HasPrefix(query, "UPDATE") {
		return driver.RowsAffected(c.r.updated), nil
	}
	return driver.RowsAffected(0), nil
}

func (c *fakeConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if err := c.r.record(query); err != nil {
		return nil, err
	}
	switch {
	case strings.Contains(query, "sys.identity_columns"), strings.Contains(query, "auto_increment"):
		rs := &fakeRows{cols: []string{"name"}}
		if c.r.identity != "" {
			rs.data = [][]driver.Value{{c.r.identity}}
		}
		return rs, nil
	case strings.Contains(query, "COLUMN_TYPE"):
		c.r.setTypeArgs(args)
		return &fakeRows{cols: []string{"COLUMN_TYPE"}, data: [][]driver.Value{{c.r.dataType}}}, nil
	case strings.Contains(query, "sys.columns"):
		c.r.setTypeArgs(args)
		return &fakeRows{
			cols: []string{"DATA_TYPE", "CHARACTER_MAXIMUM_LENGTH", "NUMERIC_PRECISION", "NUMERIC_SCALE"},
			data: [][]driver.Value{{c.r.dataType, nil, int64(10), int64(0)}},
		}, nil
	}
	return &fakeRows{}, nil
}

type fakeTx struct{ r *recorder }

func (t fakeTx) Commit() error   { return t.r.record(stmtCommit) }
func (t fakeTx) Rollback() error { return t.r.record(stmtRollback) }

// bulkStmt stands in for the bulk-copy statement: each Exec with arguments
// buffers a row, and the final Exec without arguments reports the count.
type bulkStmt struct {
	r       *recorder
	pending int64
}

func (s *bulkStmt) Close() error  { return nil }
func (s *bulkStmt) NumInput() int { return -1 }

func (s *bulkStmt) Exec(args []driver.Value) (driver.Result, error) {
	if len(args) > 0 {
		s.pending++
		return driver.RowsAffected(0), nil
	}
	s.r.mu.Lock()
	s.r.bulkRows += s.pending
	s.r.mu.Unlock()
	n := s.pending
	s.pending = 0
	return driver.RowsAffected(n), nil
}

func (s *bulkStmt) Query([]driver.Value) (driver.Rows, error) {
	return nil, errors.New("fake driver: query on bulk statement")
}

type fakeRows struct {
	cols []string
	data [][]driver.Value
	pos  int
}

func (r *fakeRows) Columns() []string { return r.cols }
func (r *fakeRows) Close() error      { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.data) {
		return io.EOF
	}
	copy(dest, r.data[r.pos])
	r.pos++
	return nil
}
