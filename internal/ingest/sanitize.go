package ingest

import (
	"html"
	"regexp"
	"strings"
)

var (
	scriptBlock = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	htmlTag     = regexp.MustCompile(`(?s)<[^>]*>`)
	plainNumber = regexp.MustCompile(`^-\d+([.,]\d+)*$`)
)

// SanitizeValue strips markup from a cell and escapes what is left. Values
// that a spreadsheet would evaluate as a formula are prefixed with a single
// quote. The second return reports whether that happened.
func SanitizeValue(v string) (string, bool) {
	stripped := scriptBlock.ReplaceAllString(v, "")
	stripped = htmlTag.ReplaceAllString(stripped, "")
	escaped := html.EscapeString(stripped)
	if isFormula(stripped) {
		return "'" + escaped, true
	}
	return escaped, false
}

func isFormula(v string) bool {
	rest := strings.TrimLeft(v, `"'`)
	if rest == "" {
		return false
	}
	switch rest[0] {
	case '=', '+', '@', '\t', '\r':
		return true
	case '-':
		return !plainNumber.MatchString(rest)
	}
	return false
}
