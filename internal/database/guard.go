package database

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrNotReadOnly is returned for statements that could modify the database.
var ErrNotReadOnly = errors.New("only read-only statements are allowed")

// ErrMultipleStatements is returned when a query contains more than one statement.
var ErrMultipleStatements = errors.New("only a single statement is allowed")

var readOnlyLeaders = map[string]bool{
	"SELECT":    true,
	"WITH":      true,
	"EXPLAIN":   true,
	"PRAGMA":    true,
	"SHOW":      true,
	"DESCRIBE":  true,
	"SUMMARIZE": true,
	"VALUES":    true,
}

// writeKeywords are reserved in both engines and never appear in a read-only
// statement outside quotes.
var writeKeywords = map[string]bool{
	"INSERT":   true,
	"UPDATE":   true,
	"DELETE":   true,
	"CREATE":   true,
	"DROP":     true,
	"ALTER":    true,
	"TRUNCATE": true,
	"ATTACH":   true,
	"DETACH":   true,
	"VACUUM":   true,
	"REINDEX":  true,
	"GRANT":    true,
	"REVOKE":   true,
}

// commandKeywords only act as statements: they are rejected where a
// statement begins (after any EXPLAIN prefix) and are otherwise ordinary
// identifiers, e.g. a column named Export.
var commandKeywords = map[string]bool{
	"MERGE":   true,
	"UPSERT":  true,
	"COPY":    true,
	"EXPORT":  true,
	"IMPORT":  true,
	"INSTALL": true,
	"LOAD":    true,
	"SET":     true,
}

var explainPrefix = map[string]bool{
	"EXPLAIN": true,
	"ANALYZE": true,
	"QUERY":   true,
	"PLAN":    true,
}

// CheckReadOnly rejects anything other than a single read-only statement.
// String literals, quoted identifiers and comments are ignored when looking
// for write keywords.
func CheckReadOnly(query string) error {
	code, err := stripQuoted(query)
	if err != nil {
		return err
	}

	code = strings.TrimSpace(code)
	code = strings.TrimRight(code, "; \t\r\n")
	if code == "" {
		return fmt.Errorf("%w: empty statement", ErrNotReadOnly)
	}
	if strings.Contains(code, ";") {
		return ErrMultipleStatements
	}

	words := strings.FieldsFunc(strings.ToUpper(code), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	if len(words) == 0 || !readOnlyLeaders[words[0]] {
		return fmt.Errorf("%w: statement starts with %q", ErrNotReadOnly, firstWord(words))
	}
	if words[0] == "PRAGMA" && strings.Contains(code, "=") {
		return fmt.Errorf("%w: pragma assignment", ErrNotReadOnly)
	}
	leading := true
	for i, w := range words[1:] {
		prev := words[i]
		if leading && !explainPrefix[prev] {
			leading = false
		}
		switch {
		case writeKeywords[w]:
			return fmt.Errorf("%w: contains %s", ErrNotReadOnly, w)
		case commandKeywords[w] && leading:
			return fmt.Errorf("%w: contains %s", ErrNotReadOnly, w)
		case w == "MERGE" && i+2 < len(words) && words[i+2] == "INTO":
			return fmt.Errorf("%w: contains MERGE INTO", ErrNotReadOnly)
		}
	}
	return nil
}

func firstWord(words []string) string {
	if len(words) == 0 {
		return ""
	}
	return words[0]
}

// stripQuoted blanks out string literals, quoted identifiers and comments so
// keyword scanning only sees SQL code.
func stripQuoted(query string) (string, error) {
	var b strings.Builder
	runes := []rune(query)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\'' || r == '"' || r == '`':
			end := closingQuote(runes, i+1, r)
			if end < 0 {
				return "", fmt.Errorf("%w: unterminated quote", ErrNotReadOnly)
			}
			b.WriteString(" ")
			i = end
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			b.WriteString(" ")
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			rest := string(runes[i+2:])
			end := strings.Index(rest, "*/")
			if end < 0 {
				return "", fmt.Errorf("%w: unterminated comment", ErrNotReadOnly)
			}
			i += 2 + utf8.RuneCountInString(rest[:end]) + 1
			b.WriteString(" ")
		default:
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

// closingQuote returns the index of the quote closing the one opened before
// start, honoring doubled quotes as escapes.
func closingQuote(runes []rune, start int, quote rune) int {
	for i := start; i < len(runes); i++ {
		if runes[i] != quote {
			continue
		}
		if i+1 < len(runes) && runes[i+1] == quote {
			i++
			continue
		}
		return i
	}
	return -1
}
