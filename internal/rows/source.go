package rows

import (
	"database/sql"
	"fmt"
)

// Source is implemented by callers that produce rows themselves, typically
// from a parser or a generator, without materializing a Table.
type Source interface {
	FieldCount() int
	Name(i int) string
	// Read advances to the next row. It returns false at the end of input.
	Read() (bool, error)
	Value(i int) (any, error)
}

// FromSource adapts a caller row source to a Cursor. Close is forwarded when
// src has a Close() error method.
func FromSource(src Source) Cursor {
	if src == nil {
		return errCursor{err: nilSource("row")}
	}
	n := src.FieldCount()
	cols := make([]string, n)
	for i := range cols {
		cols[i] = src.Name(i)
	}
	return &sourceCursor{src: src, cols: cols, vals: make([]any, n)}
}

type sourceCursor struct {
	src  Source
	cols []string
	vals []any
	err  error
}

func (c *sourceCursor) Columns() []string { return c.cols }

func (c *sourceCursor) Next() bool {
	if c.err != nil {
		return false
	}
	ok, err := c.src.Read()
	if err != nil {
		c.err = err
		return false
	}
	if !ok {
		return false
	}
	for i := range c.vals {
		v, err := c.src.Value(i)
		if err != nil {
			c.err = fmt.Errorf("rows: column %q: %w", c.cols[i], err)
			return false
		}
		c.vals[i] = v
	}
	return true
}

func (c *sourceCursor) Value(i int) any { return c.vals[i] }
func (c *sourceCursor) Err() error      { return c.err }

func (c *sourceCursor) Close() error {
	if cl, ok := c.src.(interface{ Close() error }); ok {
		return cl.Close()
	}
	return nil
}

// FromSQLRows adapts a query result. Values are scanned into a reused buffer;
// []byte values are copied because drivers may reuse their memory.
func FromSQLRows(r *sql.Rows) Cursor {
	if r == nil {
		return errCursor{err: nilSource("sql rows")}
	}
	cols, err := r.Columns()
	if err != nil {
		_ = r.Close()
		return errCursor{err: fmt.Errorf("rows: columns: %w", err)}
	}
	c := &sqlCursor{r: r, cols: cols, vals: make([]any, len(cols)), ptrs: make([]any, len(cols))}
	for i := range c.vals {
		c.ptrs[i] = &c.vals[i]
	}
	return c
}

type sqlCursor struct {
	r    *sql.Rows
	cols []string
	vals []any
	ptrs []any
	err  error
}

func (c *sqlCursor) Columns() []string { return c.cols }

func (c *sqlCursor) Next() bool {
	if c.err != nil || !c.r.Next() {
		return false
	}
	if err := c.r.Scan(c.ptrs...); err != nil {
		c.err = fmt.Errorf("rows: scan: %w", err)
		return false
	}
	for i, v := range c.vals {
		if b, ok := v.([]byte); ok {
			c.vals[i] = append([]byte(nil), b...)
		}
	}
	return true
}

func (c *sqlCursor) Value(i int) any { return c.vals[i] }

func (c *sqlCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.r.Err()
}

func (c *sqlCursor) Close() error { return c.r.Close() }
