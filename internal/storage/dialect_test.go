package storage

import (
	"strconv"
	"strings"
	"testing"
)

type dollarQuoter struct{}

func (dollarQuoter) Quote(s string) string      { return `"` + s + `"` }
func (dollarQuoter) QuoteTable(s string) string { return `"` + s + `"` }
func (dollarQuoter) Placeholder(n int) string   { return "$" + strconv.Itoa(n) }

func TestInsertValuesSQL(t *testing.T) {
	t.Parallel()

	got := InsertValuesSQL(dollarQuoter{}, "s", []string{"Id", "Name"}, 2)
	want := `INSERT INTO "s" ("Id", "Name") VALUES ($1, $2), ($3, $4)`
	if got != want {
		t.Fatalf("InsertValuesSQL() = %q; want %q", got, want)
	}
}

func TestStagingName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, prefix, dest string
		max                int
		wantPrefix         string
	}{
		{"plain", "#", "People", 116, "#People_"},
		{"schema qualified", "#", "dbo.People", 116, "#dbo_People_"},
		{"bracketed", "bulk_", "[dbo].[People]", 63, "bulk_dbo_People_"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := StagingName(tt.prefix, tt.dest, tt.max)
			if !strings.HasPrefix(got, tt.wantPrefix) {
				t.Fatalf("StagingName() = %q; want prefix %q", got, tt.wantPrefix)
			}
			if len(got) != len(tt.wantPrefix)+32 {
				t.Fatalf("StagingName() = %q; want a 32-char token", got)
			}
		})
	}

	a := StagingName("#", "People", 116)
	b := StagingName("#", "People", 116)
	if a == b {
		t.Fatalf("two staging names for the same destination collided: %q", a)
	}
}

func TestStagingName_Truncated(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 200)
	got := StagingName("bulk_", long, 63)
	if len(got) != 63 {
		t.Fatalf("len = %d; want 63", len(got))
	}
	if other := StagingName("bulk_", long, 63); other == got {
		t.Fatalf("truncated names collided: %q", got)
	}
}

func TestSplitTable(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, schema, table string }{
		{"People", "", "People"},
		{"dbo.People", "dbo", "People"},
		{"db.dbo.People", "db.dbo", "People"},
	}
	for _, tc := range cases {
		s, tb := SplitTable(tc.in)
		if s != tc.schema || tb != tc.table {
			t.Fatalf("SplitTable(%q) = (%q, %q); want (%q, %q)", tc.in, s, tb, tc.schema, tc.table)
		}
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	Register("registry_test_kind", Backend{DriverName: "nowhere"})
	b, err := Lookup("registry_test_kind")
	if err != nil || b.DriverName != "nowhere" {
		t.Fatalf("Lookup() = %+v, %v", b, err)
	}
	if _, err := Lookup("definitely_missing"); err == nil {
		t.Fatalf("Lookup(missing) = nil error")
	}
	found := false
	for _, k := range Kinds() {
		if k == "registry_test_kind" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Kinds() = %v; missing registered kind", Kinds())
	}
}
