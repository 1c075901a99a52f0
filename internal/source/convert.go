package source

// convert.go turns raw sheet cells into dataset values.
//
// Spreadsheet exports carry artifacts that are not data: Excel formula
// prefixes (="0012"), a quote pair around the whole cell, padding. CleanCell
// removes them and ParseCell types what remains as int64, string or NULL.
// Only integers that print back to the same text are typed here; every other
// cell keeps its source text and is cast later against the schema.

import (
	"strconv"
	"strings"
)

// nullTokens are cell values read as NULL.
var nullTokens = map[string]bool{
	"":     true,
	"null": true,
	"nan":  true,
	"n/a":  true,
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes one matching pair of surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		return strings.TrimSpace(s[2 : len(s)-1])
	}
	if strings.HasPrefix(s, "=") {
		s = strings.TrimSpace(s[1:])
	}

	return strings.TrimSpace(unquote(s))
}

func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	first, last := s[0], s[len(s)-1]
	if first == last && (first == '"' || first == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}

// ParseCell cleans a cell and returns it as int64, string or nil.
// "0012", "+5" and "-0" stay strings so codes survive unchanged.
func ParseCell(s string) any {
	s = CleanCell(s)
	if nullTokens[strings.ToLower(s)] {
		return nil
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(i, 10) == s {
		return i
	}
	return s
}

// HeaderName normalizes a header cell to a column name.
func HeaderName(s string) string {
	return strings.ToLower(CleanCell(s))
}
