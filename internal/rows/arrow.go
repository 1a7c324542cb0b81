package rows

import (
	"math"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// FromRecordBatch returns a cursor over a single Arrow record batch. The
// batch is retained until Close.
func FromRecordBatch(rec arrow.RecordBatch) Cursor {
	if rec == nil {
		return errCursor{err: nilSource("arrow record batch")}
	}
	rec.Retain()
	c := &arrowCursor{cols: fieldNames(rec.Schema())}
	c.setBatch(rec)
	return c
}

// FromRecordReader returns a cursor that walks every batch produced by r.
func FromRecordReader(r array.RecordReader) Cursor {
	if r == nil {
		return errCursor{err: nilSource("arrow record reader")}
	}
	r.Retain()
	return &arrowCursor{reader: r, cols: fieldNames(r.Schema()), row: -1}
}

func fieldNames(s *arrow.Schema) []string {
	out := make([]string, s.NumFields())
	for i, f := range s.Fields() {
		out[i] = f.Name
	}
	return out
}

type arrowCursor struct {
	reader array.RecordReader
	batch  arrow.RecordBatch
	owned  bool
	cols   []string
	row    int64
}

func (c *arrowCursor) setBatch(rec arrow.RecordBatch) {
	c.batch = rec
	c.owned = true
	c.row = -1
}

func (c *arrowCursor) Columns() []string { return c.cols }

func (c *arrowCursor) Next() bool {
	for {
		if c.batch != nil && c.row+1 < c.batch.NumRows() {
			c.row++
			return true
		}
		if c.reader == nil || !c.reader.Next() {
			return false
		}
		// Reader batches are only valid until the next call to Next, so they
		// are not retained here.
		c.batch = c.reader.RecordBatch()
		c.row = -1
	}
}

func (c *arrowCursor) Value(i int) any { return arrowValue(c.batch.Column(i), int(c.row)) }

func (c *arrowCursor) Err() error {
	if c.reader != nil {
		return c.reader.Err()
	}
	return nil
}

func (c *arrowCursor) Close() error {
	if c.owned && c.batch != nil {
		c.batch.Release()
		c.batch = nil
	}
	if c.reader != nil {
		c.reader.Release()
		c.reader = nil
	}
	return nil
}

// arrowValue converts one cell to a value database/sql drivers accept.
func arrowValue(col arrow.Array, idx int) any {
	if col.IsNull(idx) {
		return nil
	}
	switch arr := col.(type) {
	case *array.Boolean:
		return arr.Value(idx)
	case *array.Int8:
		return int64(arr.Value(idx))
	case *array.Int16:
		return int64(arr.Value(idx))
	case *array.Int32:
		return int64(arr.Value(idx))
	case *array.Int64:
		return arr.Value(idx)
	case *array.Uint8:
		return int64(arr.Value(idx))
	case *array.Uint16:
		return int64(arr.Value(idx))
	case *array.Uint32:
		return int64(arr.Value(idx))
	case *array.Uint64:
		// database/sql rejects a uint64 with the high bit set; such values
		// travel as decimal text.
		v := arr.Value(idx)
		if v > math.MaxInt64 {
			return strconv.FormatUint(v, 10)
		}
		return int64(v)
	case *array.Float32:
		return float64(arr.Value(idx))
	case *array.Float64:
		return arr.Value(idx)
	case *array.String:
		return arr.Value(idx)
	case *array.LargeString:
		return arr.Value(idx)
	case *array.Binary:
		return append([]byte(nil), arr.Value(idx)...)
	case *array.Date32:
		return arr.Value(idx).ToTime()
	case *array.Timestamp:
		unit := arr.DataType().(*arrow.TimestampType).Unit
		return arr.Value(idx).ToTime(unit)
	default:
		return col.ValueStr(idx)
	}
}
