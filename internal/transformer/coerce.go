// Package transformer turns text rows from a parser into database-ready
// values. Coerce wraps a rows.Cursor and converts each column according to
// a per-column plan compiled once from a CoerceSpec, so the hot loop does no
// map lookups.
package transformer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"bulkupdate/internal/config"
	"bulkupdate/internal/dberr"
	"bulkupdate/internal/rows"
)

// CoerceSpec describes how to coerce string fields into typed values.
// Typical source is the job's "coerce" transform options.
type CoerceSpec struct {
	// Types maps column name -> target type: "int" | "bool" | "date" |
	// "float" | "text". Column names match case-insensitively. Missing
	// columns stay text.
	Types map[string]string
	// Layout is an optional date layout (e.g., "02.01.2006").
	Layout string
	// Truthy/Falsy are optional custom boolean vocabularies. If both are
	// empty a default set is used (including "ano"/"ne").
	Truthy []string
	Falsy  []string
}

// BuildCoerceSpecFromTypes constructs a CoerceSpec from a map[column]type and
// a date layout.
func BuildCoerceSpecFromTypes(types map[string]string, layout string, truthy, falsy []string) CoerceSpec {
	cp := make(map[string]string, len(types))
	for k, v := range types {
		cp[k] = v
	}
	return CoerceSpec{
		Types:  cp,
		Layout: layout,
		Truthy: truthy,
		Falsy:  falsy,
	}
}

// SpecFromOptions reads a coerce transform's options bag.
func SpecFromOptions(o config.Options) CoerceSpec {
	return BuildCoerceSpecFromTypes(
		o.StringMap("types"),
		o.String("layout", ""),
		o.StringSlice("truthy"),
		o.StringSlice("falsy"),
	)
}

// ValidateSpecSanity returns an ErrInvalidInput if the spec names a column
// that is not in columns.
func ValidateSpecSanity(columns []string, spec CoerceSpec) error {
	for k := range spec.Types {
		if rows.Index(columns, k) < 0 {
			return dberr.Invalidf("coerce", "spec references unknown column %q (have %v)", k, columns)
		}
	}
	return nil
}

// Options controls how Coerce handles values that do not convert.
type Options struct {
	// DropInvalid skips rows with an unconvertible value. When false the
	// first such value stops the cursor with ErrInvalidInput.
	DropInvalid bool
	// OnError receives each dropped row. row counts source rows from 1.
	OnError func(row int64, err error)
}

// Cursor is the rows.Cursor returned by Coerce.
type Cursor struct {
	src  rows.Cursor
	plan compiledPlan
	opt  Options

	vals    []any
	row     int64
	dropped int64
	err     error
}

var _ rows.Cursor = (*Cursor)(nil)

// Coerce wraps src so that Value returns typed values. NULLs stay NULL;
// blank strings become NULL. Values that are not strings (a source that is
// already typed) pass through unchanged.
func Coerce(src rows.Cursor, spec CoerceSpec, opt Options) (*Cursor, error) {
	if src == nil {
		return nil, dberr.Invalidf("coerce", "source cursor is nil")
	}
	cols := src.Columns()
	if err := ValidateSpecSanity(cols, spec); err != nil {
		return nil, err
	}
	plan, err := compilePlan(cols, spec)
	if err != nil {
		return nil, err
	}
	return &Cursor{src: src, plan: plan, opt: opt, vals: make([]any, len(cols))}, nil
}

func (c *Cursor) Columns() []string { return c.src.Columns() }

func (c *Cursor) Next() bool {
	if c.err != nil {
		return false
	}
	for c.src.Next() {
		c.row++
		err := c.coerceRow()
		if err == nil {
			return true
		}
		if !c.opt.DropInvalid {
			c.err = err
			return false
		}
		c.dropped++
		if c.opt.OnError != nil {
			c.opt.OnError(c.row, err)
		}
	}
	return false
}

func (c *Cursor) coerceRow() error {
	for i, p := range c.plan.cols {
		raw := c.src.Value(i)
		s, ok := raw.(string)
		if !ok {
			// NULL or already typed.
			c.vals[i] = raw
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			c.vals[i] = nil
			continue
		}
		if !p.coerce(&c.vals[i], s) {
			return dberr.Invalidf("coerce", "row %d: column %q: %q is not a valid %s", c.row, p.name, s, p.typ)
		}
	}
	return nil
}

func (c *Cursor) Value(i int) any { return c.vals[i] }

func (c *Cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.src.Err()
}

func (c *Cursor) Close() error { return c.src.Close() }

// Dropped is the number of rows skipped under DropInvalid.
func (c *Cursor) Dropped() int64 { return c.dropped }

// --- plan compilation ---------------------------------------------------------

type colPlan struct {
	name   string
	typ    string
	coerce func(dst *any, s string) bool
}

type compiledPlan struct {
	cols []colPlan
}

func compilePlan(columns []string, spec CoerceSpec) (compiledPlan, error) {
	types := make(map[string]string, len(spec.Types))
	for k, v := range spec.Types {
		types[strings.ToLower(k)] = strings.ToLower(strings.TrimSpace(v))
	}

	truthy := lowerSet(spec.Truthy)
	falsy := lowerSet(spec.Falsy)
	useCustomBools := len(truthy) > 0 || len(falsy) > 0
	useCZFast := spec.Layout == "" || spec.Layout == "02.01.2006"

	cols := make([]colPlan, len(columns))
	for i, col := range columns {
		typ := types[strings.ToLower(col)]
		if typ == "" {
			typ = "text"
		}
		cols[i] = colPlan{name: col, typ: typ}

		switch typ {
		case "int":
			cols[i].coerce = func(dst *any, s string) bool {
				v, ok := toIntFast(s)
				if ok {
					*dst = v
				}
				return ok
			}

		case "float":
			cols[i].coerce = func(dst *any, s string) bool {
				v, ok := toFloat(s)
				if ok {
					*dst = v
				}
				return ok
			}

		case "bool":
			cols[i].coerce = func(dst *any, s string) bool {
				v, ok := toBoolFast(s, useCustomBools, truthy, falsy)
				if ok {
					*dst = v
				}
				return ok
			}

		case "date":
			layout := spec.Layout
			cols[i].coerce = func(dst *any, s string) bool {
				t, ok := parseDate(s, layout, useCZFast)
				if ok {
					*dst = t
				}
				return ok
			}

		case "text":
			cols[i].coerce = func(dst *any, s string) bool {
				*dst = s
				return true
			}

		default:
			return compiledPlan{}, dberr.Configf("coerce", "column %q: unknown type %q", col, typ)
		}
	}
	return compiledPlan{cols: cols}, nil
}

// --- helpers ------------------------------------------------------------------

// lowerSet builds a lowercased membership set. Empty input returns nil.
func lowerSet(in []string) map[string]struct{} {
	if len(in) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(in))
	for _, s := range in {
		m[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	return m
}

// toIntFast parses integers and only falls back to float parsing when the
// field contains a '.' (accepting "42.0" but not "42.5").
func toIntFast(s string) (int64, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if strings.IndexByte(s, '.') >= 0 {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			if f == float64(int64(f)) {
				return int64(f), true
			}
		}
	}
	return 0, false
}

// toFloat accepts a decimal point or, when there is no point, a single
// decimal comma ("10,5").
func toFloat(s string) (float64, bool) {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	if strings.IndexByte(s, '.') < 0 && strings.Count(s, ",") == 1 {
		if f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// toBoolFast resolves booleans with optional custom vocabularies.
func toBoolFast(s string, custom bool, truthy, falsy map[string]struct{}) (bool, bool) {
	ls := strings.ToLower(s)
	if custom {
		if _, ok := truthy[ls]; ok {
			return true, true
		}
		if _, ok := falsy[ls]; ok {
			return false, true
		}
		return false, false
	}
	switch ls {
	case "1", "t", "true", "yes", "y", "ano":
		return true, true
	case "0", "f", "false", "no", "n", "ne":
		return false, true
	default:
		return false, false
	}
}

// parseDate tries the CZ fast path (when the layout allows it), the
// configured layout and ISO-8601 in that order.
func parseDate(s, layout string, czFast bool) (time.Time, bool) {
	if czFast {
		if t, ok := parseCZDate(s); ok {
			return t, true
		}
	}
	if layout != "" {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	if !czFast {
		return parseCZDate(s)
	}
	return time.Time{}, false
}

// parseCZDate is a zero-allocation parser for "02.01.2006" (DD.MM.YYYY).
// Impossible dates such as 31.02. are rejected.
func parseCZDate(s string) (time.Time, bool) {
	if len(s) != 10 || s[2] != '.' || s[5] != '.' {
		return time.Time{}, false
	}
	d1, d0 := s[0]-'0', s[1]-'0'
	m1, m0 := s[3]-'0', s[4]-'0'
	y3, y2, y1, y0 := s[6]-'0', s[7]-'0', s[8]-'0', s[9]-'0'
	if d1 > 9 || d0 > 9 || m1 > 9 || m0 > 9 || y3 > 9 || y2 > 9 || y1 > 9 || y0 > 9 {
		return time.Time{}, false
	}
	day := int(d1)*10 + int(d0)
	mon := int(m1)*10 + int(m0)
	year := int(y3)*1000 + int(y2)*100 + int(y1)*10 + int(y0)
	if mon < 1 || mon > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(mon), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// String is used in log lines.
func (s CoerceSpec) String() string {
	return fmt.Sprintf("types=%v layout=%q", s.Types, s.Layout)
}
