// Package nouns extracts proper-noun values from a database and serves
// approximate lookups over them.
package nouns

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"askdb/internal/database"
)

var (
	// RE2 word classes are ASCII-only, so letters, marks and digits are
	// spelled out to keep accented names like "Motörhead".
	isolatedNumber = regexp.MustCompile(`(^|[^\p{L}\p{M}\p{N}_])\p{Nd}+([^\p{L}\p{M}\p{N}_]|$)`)
	pureNumber     = regexp.MustCompile(`^\d+(\.\d+)?$`)
	properNoun     = regexp.MustCompile(`^[A-Za-z][\p{L}\p{M}\p{N}_\s\p{Zs}&'-]+$`)
)

// Source is the part of a database handle the extractor reads.
type Source interface {
	TableNames() []string
	Columns(ctx context.Context, table string) ([]database.Column, error)
	Distinct(ctx context.Context, table, column string) ([]string, error)
}

// Collect returns every distinct proper-noun-like value found in the text
// columns of src, sorted. Tables and columns that cannot be read are skipped.
func Collect(ctx context.Context, src Source, stripNumbers bool, logger *slog.Logger) []string {
	if logger == nil {
		logger = slog.Default()
	}

	seen := make(map[string]struct{})
	for _, table := range src.TableNames() {
		cols, err := src.Columns(ctx, table)
		if err != nil {
			logger.Debug("Skipping table", "table", table, "error", err)
			continue
		}
		for _, col := range cols {
			if !isTextType(col.Type) {
				continue
			}
			values, err := src.Distinct(ctx, table, col.Name)
			if err != nil {
				logger.Debug("Skipping column", "table", table, "column", col.Name, "error", err)
				continue
			}
			for _, v := range values {
				if cleaned, ok := Clean(v, stripNumbers); ok {
					seen[cleaned] = struct{}{}
				}
			}
		}
	}

	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Clean normalizes one raw column value and reports whether it looks like a
// proper noun.
func Clean(v string, stripNumbers bool) (string, bool) {
	v = strings.TrimSpace(v)
	if stripNumbers {
		v = strings.TrimSpace(removeNumbers(v))
	}
	if pureNumber.MatchString(v) || !properNoun.MatchString(v) {
		return "", false
	}
	return v, true
}

// removeNumbers removes digit runs that stand alone as words. Adjacent runs
// share their separator, so replacement repeats until nothing changes.
func removeNumbers(v string) string {
	for {
		next := isolatedNumber.ReplaceAllString(v, "${1}${2}")
		if next == v {
			return v
		}
		v = next
	}
}

func isTextType(declared string) bool {
	t := strings.ToUpper(declared)
	return strings.Contains(t, "CHAR") || strings.Contains(t, "TEXT")
}
