// Package quoting provides identifier quoting and literal escaping shared by
// the dialects and the serializer.
package quoting

import (
	"fmt"
	"strings"
)

// DoubleQuote quotes an identifier with double quotes (ANSI, PostgreSQL,
// SQLite). Embedded double quotes are doubled.
func DoubleQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Backtick quotes an identifier with backticks (MySQL).
// Embedded backticks are doubled.
func Backtick(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

// IsPlainIdentifier reports whether s is a lower-case name made of letters,
// digits and underscores that does not start with a digit.
func IsPlainIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c == '_':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// EscapeString escapes a string literal by doubling single quotes and
// escaping backslashes.
//
// Inlined literals are for diagnostic text only. Executed statements bind
// values through placeholders.
func EscapeString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", "''")
}

// EscapeLikePattern escapes the LIKE wildcards % and _ and the escape
// character itself so they match literally.
func EscapeLikePattern(s string, escape byte) string {
	e := string(escape)
	s = strings.ReplaceAll(s, e, e+e)
	s = strings.ReplaceAll(s, "%", e+"%")
	return strings.ReplaceAll(s, "_", e+"_")
}

// ValidateTypeName rejects characters outside letters, digits, spaces,
// parentheses, commas and underscores. Type names are inlined into
// statements and cannot be bound.
func ValidateTypeName(name string) error {
	if name == "" {
		return fmt.Errorf("querytree: empty type name")
	}
	for _, c := range name {
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') &&
			(c < '0' || c > '9') && c != ' ' && c != '(' &&
			c != ')' && c != ',' && c != '_' {
			return fmt.Errorf("querytree: invalid type name character %q in %q", string(c), name)
		}
	}
	return nil
}
