// Package csv reads delimited text into a rows.Cursor for the bulk-update
// pipeline. The reader streams: it holds one record at a time and never
// buffers the whole input.
//
// The first record is the header. Header cells are BOM-stripped, matched
// against an optional header map and become the cursor's column names.
// Empty cells become NULL (nil).
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"bulkupdate/internal/config"
	"bulkupdate/internal/dberr"
	"bulkupdate/internal/rows"
)

// logEveryN is the progress line interval in rows.
const logEveryN = 50_000

// Options configures the reader. The zero value reads comma-separated input
// and keeps every column.
type Options struct {
	// Comma is the field delimiter; 0 means ','.
	Comma rune
	// HeaderMap renames source headers; keys are matched with FoldHeader.
	HeaderMap map[string]string
	// TrimSpace trims leading and trailing white space from every cell.
	TrimSpace bool
	// LazyQuotes is passed to encoding/csv.
	LazyQuotes bool
	// DropInvalid skips malformed records (bad quoting, wrong field count)
	// instead of stopping at the first one.
	DropInvalid bool
	// Columns, when set, selects and orders the emitted columns by name.
	Columns []string
	// OnError receives records skipped under DropInvalid. Optional.
	OnError func(line int, err error)
}

// OptionsFrom reads parser options from a job file options bag.
func OptionsFrom(o config.Options) Options {
	return Options{
		Comma:       o.Rune("comma", ','),
		HeaderMap:   o.StringMap("header_map"),
		TrimSpace:   o.Bool("trim_space", true),
		LazyQuotes:  o.Bool("lazy_quotes", false),
		DropInvalid: o.Bool("drop_invalid", false),
	}
}

// Cursor is a rows.Cursor over CSV input.
type Cursor struct {
	src  io.ReadCloser
	cr   *csv.Reader
	opt  Options
	cols []string
	// idx[i] is the source field of output column i.
	idx   []int
	width int

	vals    []any
	line    int
	rows    int64
	dropped int64
	err     error
}

var _ rows.Cursor = (*Cursor)(nil)

// NewCursor reads the header from src and returns a cursor positioned before
// the first data record. src is closed by Cursor.Close, or immediately when
// NewCursor fails.
func NewCursor(src io.ReadCloser, opt Options) (*Cursor, error) {
	if src == nil {
		return nil, dberr.Invalidf("csv", "source is nil")
	}
	cr := csv.NewReader(src)
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.LazyQuotes = opt.LazyQuotes
	cr.FieldsPerRecord = -1 // width is checked against the header below
	cr.ReuseRecord = true

	c := &Cursor{src: src, cr: cr, opt: opt}
	if err := c.readHeader(); err != nil {
		_ = src.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cursor) readHeader() error {
	hdr, err := c.cr.Read()
	if errors.Is(err, io.EOF) {
		return dberr.Invalidf("csv header", "input is empty")
	}
	if err != nil {
		return dberr.Wrap("csv header", "", err, func(error) error { return dberr.ErrInvalidInput })
	}
	c.line = 1
	c.width = len(hdr)
	names, err := normalizeHeaders(append([]string(nil), hdr...), c.opt.HeaderMap)
	if err != nil {
		return err
	}

	if len(c.opt.Columns) == 0 {
		c.cols = names
		c.idx = make([]int, len(names))
		for i := range names {
			c.idx[i] = i
		}
	} else {
		for _, want := range c.opt.Columns {
			i := rows.Index(names, want)
			if i < 0 {
				return dberr.Invalidf("csv header", "column %q not found in header %v", want, names)
			}
			c.cols = append(c.cols, names[i])
			c.idx = append(c.idx, i)
		}
	}
	c.vals = make([]any, len(c.cols))
	return nil
}

func (c *Cursor) Columns() []string { return c.cols }

func (c *Cursor) Next() bool {
	if c.err != nil {
		return false
	}
	for {
		rec, err := c.cr.Read()
		if errors.Is(err, io.EOF) {
			return false
		}
		var (
			line int
			pe   *csv.ParseError
		)
		switch {
		case err == nil:
			line, _ = c.cr.FieldPos(0)
			if len(rec) != c.width {
				err = fmt.Errorf("got %d fields; header has %d", len(rec), c.width)
			}
		case errors.As(err, &pe):
			line = pe.StartLine
		default:
			// Read errors from the source are never skippable.
			c.err = fmt.Errorf("csv read: %w", err)
			return false
		}
		if err != nil {
			err = fmt.Errorf("csv line %d: %w", line, err)
			if !c.opt.DropInvalid {
				c.err = dberr.Wrap("csv read", "", err, func(error) error { return dberr.ErrInvalidInput })
				return false
			}
			c.dropped++
			if c.opt.OnError != nil {
				c.opt.OnError(line, err)
			}
			continue
		}
		c.line = line

		for i, si := range c.idx {
			v := rec[si]
			if c.opt.TrimSpace {
				v = strings.TrimSpace(v)
			}
			if v == "" {
				c.vals[i] = nil
			} else {
				c.vals[i] = v
			}
		}
		c.rows++
		if c.rows%logEveryN == 0 {
			log.Printf("csv: line=%d rows=%d dropped=%d", c.line, c.rows, c.dropped)
		}
		return true
	}
}

func (c *Cursor) Value(i int) any { return c.vals[i] }
func (c *Cursor) Err() error      { return c.err }
func (c *Cursor) Close() error    { return c.src.Close() }

// Line is the input line of the current record.
func (c *Cursor) Line() int { return c.line }

// Rows is the number of records emitted so far.
func (c *Cursor) Rows() int64 { return c.rows }

// Dropped is the number of records skipped under DropInvalid.
func (c *Cursor) Dropped() int64 { return c.dropped }
