package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const yamlJob = `
job: nightly-prices
source:
  kind: file
  file: { path: prices.csv.gz }
parser:
  kind: csv
  options:
    comma: ";"
    trim_space: true
    header_map: { "Unit Price": Price }
transform:
  - kind: coerce
    options:
      types: { Id: int, Price: float }
      layout: "2006-01-02"
storage:
  kind: mssql
  db:
    dsn: "sqlserver://sa:pw@localhost:1433?database=shop"
    table: dbo.Prices
    key_columns: [Id]
    implicit_transaction: true
runtime:
  batch_size: 2000
`

const jsonJob = `{
  "job": "nightly-prices",
  "source": {"kind": "file", "file": {"path": "prices.csv.gz"}},
  "parser": {"kind": "csv", "options": {"comma": ";", "trim_space": true, "header_map": {"Unit Price": "Price"}}},
  "transform": [{"kind": "coerce", "options": {"types": {"Id": "int", "Price": "float"}, "layout": "2006-01-02"}}],
  "storage": {"kind": "mssql", "db": {"dsn": "sqlserver://sa:pw@localhost:1433?database=shop", "table": "dbo.Prices", "key_columns": ["Id"], "implicit_transaction": true}},
  "runtime": {"batch_size": 2000}
}`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

// TestLoad_YAMLAndJSON checks that both encodings decode to the same typed
// pipeline and that option accessors see the same values.
func TestLoad_YAMLAndJSON(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct{ name, body string }{
		{"job.yaml", yamlJob},
		{"job.yml", yamlJob},
		{"job.json", jsonJob},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p, err := Load(writeFile(t, tc.name, tc.body))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if p.Job != "nightly-prices" || p.Source.File.Path != "prices.csv.gz" {
				t.Fatalf("job/source = %q/%q", p.Job, p.Source.File.Path)
			}
			if p.Storage.Kind != "mssql" || p.Storage.DB.Table != "dbo.Prices" || !p.Storage.DB.ImplicitTransaction {
				t.Fatalf("storage = %+v", p.Storage)
			}
			if !reflect.DeepEqual(p.Storage.DB.KeyColumns, []string{"Id"}) {
				t.Fatalf("key_columns = %v; want [Id]", p.Storage.DB.KeyColumns)
			}
			if p.Runtime.BatchSize != 2000 {
				t.Fatalf("batch_size = %d; want 2000", p.Runtime.BatchSize)
			}
			if got := p.Parser.Options.Rune("comma", ','); got != ';' {
				t.Fatalf("comma = %q; want ';'", got)
			}
			if !p.Parser.Options.Bool("trim_space", false) {
				t.Fatal("trim_space = false; want true")
			}
			if got := p.Parser.Options.StringMap("header_map"); got["Unit Price"] != "Price" {
				t.Fatalf("header_map = %v", got)
			}
			if len(p.Transform) != 1 || p.Transform[0].Kind != "coerce" {
				t.Fatalf("transform = %+v", p.Transform)
			}
			if got := p.Transform[0].Options.StringMap("types"); got["Price"] != "float" || got["Id"] != "int" {
				t.Fatalf("types = %v", got)
			}
			if issues := ValidatePipeline(p); Err(issues) != nil {
				t.Fatalf("ValidatePipeline() = %v; want no errors", issues)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file string
		body string
	}{
		{"unknown yaml field", "job.yaml", "job: x\nstorage: { kind: mssql, databse: {} }\n"},
		{"unknown json field", "job.json", `{"job": "x", "sauce": {}}`},
		{"malformed json", "job.json", `{"job": `},
		{"malformed yaml", "job.yaml", "job: [unterminated\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Load(writeFile(t, tt.file, tt.body)); err == nil {
				t.Fatalf("Load() error = nil; want error")
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load(missing) error = nil; want error")
	}
}

func TestDecode_MissingOptionsAreEmpty(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct{ ext, body string }{
		{".json", `{"parser": {"kind": "csv"}, "transform": [{"kind": "coerce"}]}`},
		{".json", `{"parser": {"kind": "csv", "options": null}, "transform": [{"kind": "coerce", "options": null}]}`},
		{".yaml", "parser: { kind: csv }\ntransform:\n  - kind: coerce\n"},
		{".yaml", "parser: { kind: csv, options: }\ntransform:\n  - { kind: coerce, options: }\n"},
	} {
		p, err := Decode([]byte(tc.body), tc.ext)
		if err != nil {
			t.Fatalf("Decode(%s) error = %v", tc.body, err)
		}
		if p.Parser.Options == nil || p.Transform[0].Options == nil {
			t.Fatalf("Decode(%s): options are nil; want empty maps", tc.body)
		}
	}
}

func TestPipeline_JobName(t *testing.T) {
	t.Parallel()

	p := Pipeline{Storage: Storage{DB: DBConfig{Table: "dbo.Prices"}}}
	if got := p.JobName(); got != "dbo.Prices" {
		t.Fatalf("JobName() = %q; want dbo.Prices", got)
	}
	p.Job = " nightly "
	if got := p.JobName(); got != "nightly" {
		t.Fatalf("JobName() = %q; want nightly", got)
	}
}

func TestOptions_Accessors(t *testing.T) {
	t.Parallel()

	o := Options{
		"s":     "x",
		"b":     true,
		"fint":  float64(7),
		"iint":  3,
		"i64":   int64(9),
		"comma": "|;",
		"empty": "",
		"map":   map[string]any{"a": "A", "n": 1},
		"list":  []any{"a", 2, "b"},
		"strs":  []string{"x", "y"},
	}

	if got := o.String("s", "d"); got != "x" {
		t.Fatalf("String(s) = %q; want x", got)
	}
	if got := o.String("b", "d"); got != "d" {
		t.Fatalf("String(b) = %q; want default", got)
	}
	if !o.Bool("b", false) || o.Bool("s", false) {
		t.Fatal("Bool coercion mismatch")
	}
	for key, want := range map[string]int{"fint": 7, "iint": 3, "i64": 9, "s": -1, "missing": -1} {
		if got := o.Int(key, -1); got != want {
			t.Fatalf("Int(%s) = %d; want %d", key, got, want)
		}
	}
	if got := o.Rune("comma", ','); got != '|' {
		t.Fatalf("Rune(comma) = %q; want '|'", got)
	}
	if got := o.Rune("empty", ','); got != ',' {
		t.Fatalf("Rune(empty) = %q; want ','", got)
	}
	if got := o.StringMap("map"); !reflect.DeepEqual(got, map[string]string{"a": "A"}) {
		t.Fatalf("StringMap(map) = %v", got)
	}
	if got := o.StringMap("missing"); got == nil || len(got) != 0 {
		t.Fatalf("StringMap(missing) = %v; want empty map", got)
	}
	if got := o.StringSlice("list"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("StringSlice(list) = %v", got)
	}
	if got := o.StringSlice("strs"); !reflect.DeepEqual(got, []string{"x", "y"}) {
		t.Fatalf("StringSlice(strs) = %v", got)
	}
	if o.StringSlice("s") != nil || o.Any("missing") != nil {
		t.Fatal("missing/mistyped keys should yield nil")
	}
}
