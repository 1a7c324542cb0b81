package rows

import "fmt"

// Table is a random-access, in-memory dataset: ordered column names plus rows
// aligned to them.
type Table struct {
	cols []string
	data [][]any
}

// NewTable returns an empty table with the given columns.
func NewTable(columns ...string) *Table {
	return &Table{cols: append([]string(nil), columns...)}
}

// Columns returns the table's column names.
func (t *Table) Columns() []string { return t.cols }

// Append adds a row. The number of values must match the column count.
func (t *Table) Append(values ...any) error {
	if len(values) != len(t.cols) {
		return fmt.Errorf("rows: append: got %d values for %d columns", len(values), len(t.cols))
	}
	t.data = append(t.data, values)
	return nil
}

// Len reports the number of rows.
func (t *Table) Len() int { return len(t.data) }

// Row returns row i. The slice is shared with the table.
func (t *Table) Row(i int) []any { return t.data[i] }

// FromTable returns a cursor over t. The cursor reads t's rows in place.
func FromTable(t *Table) Cursor {
	if t == nil {
		return errCursor{err: nilSource("table")}
	}
	return &tableCursor{t: t, pos: -1}
}

type tableCursor struct {
	t   *Table
	pos int
}

func (c *tableCursor) Columns() []string { return c.t.cols }

func (c *tableCursor) Next() bool {
	if c.pos+1 >= len(c.t.data) {
		c.pos = len(c.t.data)
		return false
	}
	c.pos++
	return true
}

func (c *tableCursor) Value(i int) any { return c.t.data[c.pos][i] }
func (c *tableCursor) Err() error      { return nil }
func (c *tableCursor) Close() error    { return nil }
