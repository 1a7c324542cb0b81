// Package config defines the job file model for the bulkupdate command: where
// the rows come from, how they are parsed and coerced, and which destination
// table they update.
//
// Job files are YAML (.yaml/.yml) or JSON (anything else). Both encodings map
// onto the same structs:
//
//	job: nightly-prices
//	source:    { kind: file, file: { path: prices.csv.gz } }
//	parser:    { kind: csv, options: { comma: ";", trim_space: true } }
//	transform:
//	  - kind: coerce
//	    options: { types: { Id: int, Price: float, ValidFrom: date } }
//	storage:
//	  kind: mssql
//	  db: { dsn: "sqlserver://...", table: dbo.Prices, key_columns: [Id] }
//	runtime:   { batch_size: 5000 }
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Pipeline is the top-level object decoded from a job file.
type Pipeline struct {
	// Job names the run in logs, metrics and the CLI summary. Defaults to
	// storage.db.table when empty.
	Job string `json:"job" yaml:"job"`

	Source Source `json:"source" yaml:"source"`

	// Parser turns raw bytes into a row cursor.
	Parser Parser `json:"parser" yaml:"parser"`

	// Transform lists the ordered transformations applied to parsed rows.
	Transform []Transform `json:"transform" yaml:"transform"`

	// Storage names the backend and the destination table.
	Storage Storage       `json:"storage" yaml:"storage"`
	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`
}

// RuntimeConfig controls batching.
type RuntimeConfig struct {
	// BatchSize is the number of rows per bulk-load batch. Zero means the
	// pipeline default.
	BatchSize int `json:"batch_size" yaml:"batch_size"`
}

// Source identifies the data source.
type Source struct {
	// Kind selects the source implementation: "file" or "http".
	Kind string     `json:"kind" yaml:"kind"`
	File SourceFile `json:"file" yaml:"file"`
	HTTP SourceHTTP `json:"http" yaml:"http"`
}

// SourceFile holds configuration for the "file" source kind.
type SourceFile struct {
	// Path is the local filesystem path to the input file. A .gz or .zst
	// suffix selects transparent decompression.
	Path string `json:"path" yaml:"path"`
}

// SourceHTTP holds configuration for the "http" source kind.
type SourceHTTP struct {
	// URL is downloaded with GET. A path ending in .gz or .zst selects
	// transparent decompression.
	URL string `json:"url" yaml:"url"`

	// TimeoutSeconds bounds the whole download. Zero means 30s.
	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds"`

	// MaxRetries is the number of retries after 429, 5xx or a transport
	// error.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	InsecureSkipVerify bool `json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// Parser selects how to parse the raw source into rows.
type Parser struct {
	// Kind selects the parser implementation. Current value: "csv".
	Kind string `json:"kind" yaml:"kind"`

	// Options is interpreted by the parser. For CSV:
	//   comma (string), header_map (object), trim_space (bool),
	//   lazy_quotes (bool), drop_invalid (bool)
	Options Options `json:"options" yaml:"options"`
}

// Transform defines a single transformation step.
type Transform struct {
	// Kind selects the transform. Current value: "coerce".
	Kind string `json:"kind" yaml:"kind"`

	// Options is interpreted by the transform. For coerce:
	//   types (object column -> int|bool|date|text|float), layout (string),
	//   truthy ([]string), falsy ([]string), drop_invalid (bool)
	Options Options `json:"options" yaml:"options"`
}

// Storage selects the backend used for the update.
type Storage struct {
	// Kind is a registered storage kind: mssql, postgres, sqlite or mysql.
	Kind string   `json:"kind" yaml:"kind"`
	DB   DBConfig `json:"db" yaml:"db"`
}

// DBConfig configures the destination.
type DBConfig struct {
	// DSN is the driver connection string for the storage kind.
	DSN string `json:"dsn" yaml:"dsn"`

	// Table is the destination table, optionally schema-qualified
	// ("dbo.Prices").
	Table string `json:"table" yaml:"table"`

	// KeyColumns identify the destination rows to update. They must be
	// present in the input.
	KeyColumns []string `json:"key_columns" yaml:"key_columns"`

	// Columns optionally restricts and orders the input columns sent to the
	// database. Empty means every input column.
	Columns []string `json:"columns" yaml:"columns"`

	// ImplicitTransaction wraps the run in a transaction the pipeline owns.
	ImplicitTransaction bool `json:"implicit_transaction" yaml:"implicit_transaction"`
}

// JobName returns Job, or the destination table when Job is empty.
func (p Pipeline) JobName() string {
	if j := strings.TrimSpace(p.Job); j != "" {
		return j
	}
	return p.Storage.DB.Table
}

// Load reads and decodes the job file at path. Unknown fields are rejected so
// that typos surface instead of silently falling back to defaults.
func Load(path string) (Pipeline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	p, err := Decode(b, filepath.Ext(path))
	if err != nil {
		return Pipeline{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return p, nil
}

// Decode decodes b as YAML when ext is ".yaml" or ".yml" and as JSON otherwise.
func Decode(b []byte, ext string) (Pipeline, error) {
	var p Pipeline
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil {
			return Pipeline{}, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return Pipeline{}, fmt.Errorf("decode json: %w", err)
		}
	}
	if p.Parser.Options == nil {
		p.Parser.Options = Options{}
	}
	for i := range p.Transform {
		if p.Transform[i].Options == nil {
			p.Transform[i].Options = Options{}
		}
	}
	return p, nil
}

// Options fetches typed values from free-form option maps. It performs only
// minimal coercion and returns the provided default when a key is absent or
// of an unexpected type.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. encoding/json decodes numbers as
// float64 and yaml.v3 as int, so both are accepted.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		case int64:
			return int(n)
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def if key is
// missing or empty.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// StringMap returns a map[string]string for key when the value is an object
// whose values are strings. Non-string values are ignored. Returns an empty map
// when the key is missing or the value is not an object.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		if m, ok := v.(map[string]any); ok {
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		}
	}
	return res
}

// StringSlice returns a []string for key when the value is an array of
// strings. Returns nil when the key is missing or the value is not an array.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// Any returns the raw value for key, or nil.
func (o Options) Any(key string) any {
	if v, ok := o[key]; ok {
		return v
	}
	return nil
}

// UnmarshalJSON decodes a missing or null "options" object to an empty,
// non-nil map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}

// UnmarshalYAML is the YAML counterpart of UnmarshalJSON.
func (o *Options) UnmarshalYAML(n *yaml.Node) error {
	var tmp map[string]any
	if err := n.Decode(&tmp); err != nil {
		return err
	}
	if tmp == nil {
		tmp = map[string]any{}
	}
	*o = Options(tmp)
	return nil
}
