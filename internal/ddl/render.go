package ddl

import (
	"fmt"
	"strings"
)

// Syntax carries the dialect-specific pieces of a CREATE TABLE statement.
type Syntax struct {
	// Name prefixes error messages, e.g. "mssql ddl".
	Name string
	// Quote quotes one identifier; QuoteTable quotes a dotted name.
	Quote      func(string) string
	QuoteTable func(string) string
	// Identity renders an identity column definition from its quoted name and
	// type. It may fold the primary key into the column (SQLite) and report
	// that via the second return value.
	Identity func(quoted, sqlType string) (def string, inlinePK bool)
	// Guard wraps the CREATE TABLE statement so it is idempotent.
	Guard func(quotedTable, create string) string
}

// Validate checks the parts of t every renderer relies on.
func Validate(t TableDef) error {
	if strings.TrimSpace(t.FQN) == "" {
		return fmt.Errorf("table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("at least one column is required")
	}
	identities := 0
	for _, c := range t.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("column with empty name in table %s", t.FQN)
		}
		if strings.TrimSpace(c.SQLType) == "" {
			return fmt.Errorf("column %s missing SQLType", c.Name)
		}
		if c.Identity {
			identities++
		}
	}
	if identities > 1 {
		return fmt.Errorf("table %s has %d identity columns; at most one is allowed", t.FQN, identities)
	}
	return nil
}

// Render builds an idempotent CREATE TABLE statement for t using s.
func Render(t TableDef, s Syntax) (string, error) {
	if err := Validate(t); err != nil {
		return "", fmt.Errorf("%s: %w", s.Name, err)
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, len(t.Columns))
	inline := false

	for _, c := range t.Columns {
		name := s.Quote(strings.TrimSpace(c.Name))
		typ := strings.TrimSpace(c.SQLType)

		var sb strings.Builder
		if c.Identity && s.Identity != nil {
			def, pk := s.Identity(name, typ)
			sb.WriteString(def)
			inline = inline || pk
		} else {
			sb.WriteString(name)
			sb.WriteByte(' ')
			sb.WriteString(typ)
			if !c.Nullable {
				sb.WriteString(" NOT NULL")
			}
			if def := strings.TrimSpace(c.Default); def != "" {
				sb.WriteString(" DEFAULT ")
				sb.WriteString(def)
			}
		}
		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, name)
		}
	}

	if len(pks) > 0 && !inline {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	table := s.QuoteTable(strings.TrimSpace(t.FQN))
	create := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", table, strings.Join(cols, ",\n  "))
	if s.Guard != nil {
		return s.Guard(table, create), nil
	}
	return create, nil
}
