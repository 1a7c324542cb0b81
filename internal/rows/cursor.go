// Package rows normalizes the row shapes accepted by the bulk-update pipeline
// (in-memory tables, caller row sources, *sql.Rows, Arrow record batches) into
// a single forward-only Cursor.
//
// Adapters are views: they do not buffer beyond what the underlying source
// already holds.
package rows

import (
	"strings"

	"bulkupdate/internal/dberr"
)

// Cursor is a forward-only sequence of rows with named, ordered columns.
//
// Next advances to the next row and reports whether one is available. Value
// returns field i of the current row and is only valid between a successful
// Next and the following call to Next. Err reports the error, if any, that
// stopped iteration.
type Cursor interface {
	Columns() []string
	Next() bool
	Value(i int) any
	Err() error
	Close() error
}

// Index returns the position of name in columns using a case-insensitive
// comparison, or -1.
func Index(columns []string, name string) int {
	for i, c := range columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

func nilSource(kind string) error {
	return dberr.Invalidf("rows", "%s source is nil", kind)
}

// errCursor is returned by constructors that cannot build a real cursor so
// callers still get a usable value whose Err reports the problem.
type errCursor struct{ err error }

func (c errCursor) Columns() []string { return nil }
func (c errCursor) Next() bool        { return false }
func (c errCursor) Value(int) any     { return nil }
func (c errCursor) Err() error        { return c.err }
func (c errCursor) Close() error      { return nil }

// Without returns a view of cur that hides column (matched case-insensitively).
// If the column is absent, cur is returned unchanged.
func Without(cur Cursor, column string) Cursor {
	if cur == nil {
		return errCursor{err: nilSource("projected")}
	}
	src := cur.Columns()
	skip := Index(src, column)
	if skip < 0 {
		return cur
	}
	cols := make([]string, 0, len(src)-1)
	idx := make([]int, 0, len(src)-1)
	for i, c := range src {
		if i == skip {
			continue
		}
		cols = append(cols, c)
		idx = append(idx, i)
	}
	return &projected{Cursor: cur, cols: cols, idx: idx}
}

type projected struct {
	Cursor
	cols []string
	idx  []int
}

func (p *projected) Columns() []string { return p.cols }
func (p *projected) Value(i int) any   { return p.Cursor.Value(p.idx[i]) }
