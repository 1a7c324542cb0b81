package csv

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"bulkupdate/internal/dberr"
)

const utf8BOM = "\uFEFF"

// StripHeaderBOM removes a UTF-8 BOM from the first header cell if present.
func StripHeaderBOM(headers []string) []string {
	if len(headers) == 0 {
		return headers
	}
	headers[0] = strings.TrimPrefix(headers[0], utf8BOM)
	return headers
}

// FoldHeader reduces header text to the key used for header_map lookups:
// trimmed, lower-cased, with accents stripped (NFD, drop Mn, NFC). "Název "
// and "nazev" fold to the same key.
func FoldHeader(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return folded
}

// normalizeHeaders maps raw header cells to column names. A header whose
// folded form matches a folded header_map key takes the mapped name; any
// other header keeps its trimmed NFC spelling. Duplicate or empty names are
// rejected since the pipeline addresses columns by name.
func normalizeHeaders(raw []string, headerMap map[string]string) ([]string, error) {
	folded := make(map[string]string, len(headerMap))
	for k, v := range headerMap {
		folded[FoldHeader(k)] = v
	}

	raw = StripHeaderBOM(raw)
	out := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, h := range raw {
		name := norm.NFC.String(strings.TrimSpace(h))
		if mapped, ok := folded[FoldHeader(h)]; ok {
			name = mapped
		}
		if name == "" {
			return nil, dberr.Invalidf("csv header", "column %d has an empty name", i+1)
		}
		key := strings.ToLower(name)
		if j, dup := seen[key]; dup {
			return nil, dberr.Invalidf("csv header", "columns %d and %d both map to %q", j+1, i+1, name)
		}
		seen[key] = i
		out[i] = name
	}
	return out, nil
}
