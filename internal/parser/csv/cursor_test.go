package csv

import (
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"bulkupdate/internal/config"
	"bulkupdate/internal/dberr"
)

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error { c.closed = true; return nil }

func open(t *testing.T, body string, opt Options) *Cursor {
	t.Helper()
	c, err := NewCursor(io.NopCloser(strings.NewReader(body)), opt)
	if err != nil {
		t.Fatalf("NewCursor() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func drain(t *testing.T, c *Cursor) [][]any {
	t.Helper()
	var out [][]any
	for c.Next() {
		row := make([]any, len(c.Columns()))
		for i := range row {
			row[i] = c.Value(i)
		}
		out = append(out, row)
	}
	return out
}

func TestCursor_Basic(t *testing.T) {
	t.Parallel()

	c := open(t, "\uFEFFId,Name, Price \n1, Alice ,10.5\n2,,\n", Options{TrimSpace: true})
	if got, want := c.Columns(), []string{"Id", "Name", "Price"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Columns() = %v; want %v", got, want)
	}
	got := drain(t, c)
	want := [][]any{{"1", "Alice", "10.5"}, {"2", nil, nil}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("rows = %v; want %v", got, want)
	}
	if c.Err() != nil {
		t.Fatalf("Err() = %v", c.Err())
	}
	if c.Rows() != 2 || c.Line() != 3 {
		t.Fatalf("Rows()/Line() = %d/%d; want 2/3", c.Rows(), c.Line())
	}
}

func TestCursor_NoTrimKeepsSpaces(t *testing.T) {
	t.Parallel()

	c := open(t, "Id,Name\n1, Bob \n", Options{})
	got := drain(t, c)
	if got[0][1] != " Bob " {
		t.Fatalf("Name = %q; want %q", got[0][1], " Bob ")
	}
}

func TestCursor_CommaAndLazyQuotes(t *testing.T) {
	t.Parallel()

	c := open(t, "Id;Note\n1;say \"hi\" there\n", Options{Comma: ';', LazyQuotes: true})
	got := drain(t, c)
	if c.Err() != nil {
		t.Fatalf("Err() = %v", c.Err())
	}
	if got[0][1] != `say "hi" there` {
		t.Fatalf("Note = %q", got[0][1])
	}
}

func TestCursor_HeaderMapFoldsAccentsAndCase(t *testing.T) {
	t.Parallel()

	opt := Options{HeaderMap: map[string]string{"nazev": "Name", "CENA": "Price"}}
	c := open(t, "Id,Název ,Cena\n1,x,2\n", opt)
	if got, want := c.Columns(), []string{"Id", "Name", "Price"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Columns() = %v; want %v", got, want)
	}
}

func TestCursor_ColumnSelection(t *testing.T) {
	t.Parallel()

	c := open(t, "A,B,C\n1,2,3\n", Options{Columns: []string{"c", "A"}})
	if got, want := c.Columns(), []string{"C", "A"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Columns() = %v; want %v", got, want)
	}
	if got, want := drain(t, c), [][]any{{"3", "1"}}; !reflect.DeepEqual(got, want) {
		t.Fatalf("rows = %v; want %v", got, want)
	}
}

func TestCursor_MalformedStops(t *testing.T) {
	t.Parallel()

	c := open(t, "Id,Name\n1,a\n2\n3,c\n", Options{})
	got := drain(t, c)
	if len(got) != 1 {
		t.Fatalf("rows = %v; want 1 row before the error", got)
	}
	if !dberr.IsInvalidInput(c.Err()) || !strings.Contains(c.Err().Error(), "line 3") {
		t.Fatalf("Err() = %v; want invalid input at line 3", c.Err())
	}
	if c.Next() {
		t.Fatal("Next() after error = true")
	}
}

func TestCursor_DropInvalid(t *testing.T) {
	t.Parallel()

	var lines []int
	opt := Options{
		DropInvalid: true,
		OnError:     func(line int, err error) { lines = append(lines, line) },
	}
	c := open(t, "Id,Name\n1,a\n2\n3,c,extra\n4,d\n", opt)
	got := drain(t, c)
	want := [][]any{{"1", "a"}, {"4", "d"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("rows = %v; want %v", got, want)
	}
	if c.Err() != nil {
		t.Fatalf("Err() = %v; want nil", c.Err())
	}
	if c.Dropped() != 2 || !reflect.DeepEqual(lines, []int{3, 4}) {
		t.Fatalf("Dropped() = %d, lines = %v; want 2, [3 4]", c.Dropped(), lines)
	}
}

func TestCursor_DropInvalidSkipsBadQuoting(t *testing.T) {
	t.Parallel()

	c := open(t, "Id,Name\n1,\"a\"b\n2,c\n", Options{DropInvalid: true})
	if got, want := drain(t, c), [][]any{{"2", "c"}}; !reflect.DeepEqual(got, want) {
		t.Fatalf("rows = %v; want %v", got, want)
	}
	if c.Dropped() != 1 || c.Err() != nil {
		t.Fatalf("Dropped()/Err() = %d/%v; want 1/nil", c.Dropped(), c.Err())
	}
}

type failingReader struct{ after io.Reader }

func (f *failingReader) Read(p []byte) (int, error) {
	if n, err := f.after.Read(p); n > 0 || err == nil {
		return n, nil
	}
	return 0, errors.New("disk on fire")
}

func TestCursor_ReadErrorIsFatalEvenWhenDropping(t *testing.T) {
	t.Parallel()

	src := io.NopCloser(&failingReader{after: strings.NewReader("Id,Name\n1,a\n")})
	c, err := NewCursor(src, Options{DropInvalid: true})
	if err != nil {
		t.Fatalf("NewCursor() error = %v", err)
	}
	defer c.Close()
	if got := drain(t, c); len(got) != 1 {
		t.Fatalf("rows = %v; want 1", got)
	}
	if c.Err() == nil || !strings.Contains(c.Err().Error(), "disk on fire") {
		t.Fatalf("Err() = %v; want the read error", c.Err())
	}
}

func TestNewCursor_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		opt  Options
	}{
		{"empty input", "", Options{}},
		{"duplicate header", "Id,id\n", Options{}},
		{"mapped onto existing", "Id,Key\n", Options{HeaderMap: map[string]string{"key": "ID"}}},
		{"empty header cell", "Id, \n", Options{}},
		{"missing selected column", "Id,Name\n", Options{Columns: []string{"Price"}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src := &closeTracker{Reader: strings.NewReader(tt.body)}
			_, err := NewCursor(src, tt.opt)
			if !dberr.IsInvalidInput(err) {
				t.Fatalf("NewCursor() error = %v; want ErrInvalidInput", err)
			}
			if !src.closed {
				t.Fatal("source was not closed after a failed NewCursor")
			}
		})
	}

	if _, err := NewCursor(nil, Options{}); !dberr.IsInvalidInput(err) {
		t.Fatalf("NewCursor(nil) error = %v; want ErrInvalidInput", err)
	}
}

func TestOptionsFrom(t *testing.T) {
	t.Parallel()

	got := OptionsFrom(config.Options{
		"comma":        ";",
		"header_map":   map[string]any{"Unit Price": "Price"},
		"drop_invalid": true,
	})
	if got.Comma != ';' || !got.TrimSpace || got.LazyQuotes || !got.DropInvalid {
		t.Fatalf("OptionsFrom() = %+v", got)
	}
	if got.HeaderMap["Unit Price"] != "Price" {
		t.Fatalf("HeaderMap = %v", got.HeaderMap)
	}
}

func TestFoldHeader(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		" Název ":    "nazev",
		"ŽLUŤOUČKÝ":  "zlutoucky",
		"Unit Price": "unit price",
		"":           "",
	} {
		if got := FoldHeader(in); got != want {
			t.Fatalf("FoldHeader(%q) = %q; want %q", in, got, want)
		}
	}
}
