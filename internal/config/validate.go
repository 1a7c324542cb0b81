package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"unicode/utf8"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is reported but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path is a dotted path into the job
// file, e.g. "storage.db.key_columns" or "transform[0].options.types.Price".
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// StorageKinds are the storage kinds a job may name.
var StorageKinds = []string{"mssql", "mysql", "postgres", "sqlite"}

// CoerceTypes are the target types accepted by the coerce transform.
var CoerceTypes = []string{"int", "bool", "date", "text", "float"}

// ValidatePipeline performs static validation of p without touching the
// filesystem or the database.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "job",
			Message:  "job is empty; the destination table name is used as the job label",
		})
	}
	issues = append(issues, validateSource(p.Source)...)
	issues = append(issues, validateParser(p.Parser)...)
	issues = append(issues, validateTransforms(p.Transform)...)
	issues = append(issues, validateStorage(p.Storage)...)
	issues = append(issues, validateRuntime(p.Runtime)...)

	return issues
}

// Err joins the error-severity issues into one error, or returns nil when
// there are none.
func Err(issues []Issue) error {
	var errs []error
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			errs = append(errs, iss)
		}
	}
	return errors.Join(errs...)
}

func validateSource(s Source) []Issue {
	switch strings.TrimSpace(s.Kind) {
	case "":
		return []Issue{{SeverityError, "source.kind", "source.kind must not be empty"}}
	case "file":
		if strings.TrimSpace(s.File.Path) == "" {
			return []Issue{{SeverityError, "source.file.path", "file source requires a non-empty path"}}
		}
		return nil
	case "http":
		u, err := url.Parse(strings.TrimSpace(s.HTTP.URL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return []Issue{{SeverityError, "source.http.url", fmt.Sprintf("http source requires an absolute http(s) URL, got %q", s.HTTP.URL)}}
		}
		var issues []Issue
		if s.HTTP.TimeoutSeconds < 0 {
			issues = append(issues, Issue{SeverityError, "source.http.timeout_seconds", "timeout_seconds must not be negative"})
		}
		if s.HTTP.MaxRetries < 0 {
			issues = append(issues, Issue{SeverityError, "source.http.max_retries", "max_retries must not be negative"})
		}
		if s.HTTP.InsecureSkipVerify {
			issues = append(issues, Issue{SeverityWarning, "source.http.insecure_skip_verify", "TLS certificate verification is disabled"})
		}
		return issues
	default:
		return []Issue{{SeverityError, "source.kind", fmt.Sprintf("unsupported source kind %q", s.Kind)}}
	}
}

func validateParser(p Parser) []Issue {
	var issues []Issue

	switch strings.TrimSpace(p.Kind) {
	case "":
		return []Issue{{SeverityError, "parser.kind", "parser.kind must not be empty"}}
	case "csv":
	default:
		return []Issue{{SeverityError, "parser.kind", fmt.Sprintf("unsupported parser kind %q", p.Kind)}}
	}

	if c := p.Options.String("comma", ","); utf8.RuneCountInString(c) != 1 || c == "\n" || c == "\r" || c == "\"" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "parser.options.comma",
			Message:  fmt.Sprintf("comma must be a single character other than a quote or newline, got %q", c),
		})
	}
	if raw := p.Options.Any("header_map"); raw != nil {
		if _, ok := raw.(map[string]any); !ok {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "parser.options.header_map",
				Message:  "header_map must be an object of source header to column name",
			})
		}
	}
	return issues
}

func validateTransforms(ts []Transform) []Issue {
	var issues []Issue

	for i, t := range ts {
		path := fmt.Sprintf("transform[%d]", i)
		switch strings.TrimSpace(t.Kind) {
		case "":
			issues = append(issues, Issue{SeverityError, path + ".kind", "transform kind must not be empty"})
			continue
		case "coerce":
		default:
			issues = append(issues, Issue{SeverityError, path + ".kind", fmt.Sprintf("unsupported transform kind %q", t.Kind)})
			continue
		}

		types := t.Options.Any("types")
		m, ok := types.(map[string]any)
		if !ok || len(m) == 0 {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     path + ".options.types",
				Message:  "coerce transform has no column types; every value stays text",
			})
			continue
		}
		for col, v := range m {
			s, _ := v.(string)
			if !slices.Contains(CoerceTypes, strings.ToLower(s)) {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     fmt.Sprintf("%s.options.types.%s", path, col),
					Message:  fmt.Sprintf("unknown coerce type %v; want one of %v", v, CoerceTypes),
				})
			}
		}
	}
	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue

	switch kind := strings.TrimSpace(s.Kind); {
	case kind == "":
		issues = append(issues, Issue{SeverityError, "storage.kind", "storage.kind must not be empty"})
	case !slices.Contains(StorageKinds, kind):
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unsupported storage kind %q; want one of %v", s.Kind, StorageKinds),
		})
	}

	db := s.DB
	if strings.TrimSpace(db.DSN) == "" {
		issues = append(issues, Issue{SeverityError, "storage.db.dsn", "storage.db.dsn must not be empty"})
	}
	if strings.TrimSpace(db.Table) == "" {
		issues = append(issues, Issue{SeverityError, "storage.db.table", "storage.db.table must not be empty"})
	}

	if len(db.KeyColumns) == 0 {
		issues = append(issues, Issue{SeverityError, "storage.db.key_columns", "at least one key column is required"})
	}
	seen := map[string]struct{}{}
	for i, k := range db.KeyColumns {
		lk := strings.ToLower(strings.TrimSpace(k))
		path := fmt.Sprintf("storage.db.key_columns[%d]", i)
		if lk == "" {
			issues = append(issues, Issue{SeverityError, path, "key column must not be empty"})
			continue
		}
		if _, dup := seen[lk]; dup {
			issues = append(issues, Issue{SeverityError, path, fmt.Sprintf("duplicate key column %q", k)})
		}
		seen[lk] = struct{}{}
	}

	if len(db.Columns) > 0 {
		for _, k := range db.KeyColumns {
			if !containsFold(db.Columns, k) {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     "storage.db.columns",
					Message:  fmt.Sprintf("columns does not include key column %q", k),
				})
			}
		}
		if len(db.Columns) <= len(db.KeyColumns) {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "storage.db.columns",
				Message:  "columns must include at least one non-key column to update",
			})
		}
	}
	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	if r.BatchSize < 0 {
		return []Issue{{
			Severity: SeverityError,
			Path:     "runtime.batch_size",
			Message:  fmt.Sprintf("batch_size must be positive, got %d", r.BatchSize),
		}}
	}
	return nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
