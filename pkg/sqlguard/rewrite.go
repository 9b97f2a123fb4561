package sqlguard

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxRows is the row cap appended to statements without their own LIMIT.
const MaxRows = 100

var (
	limitPattern = regexp.MustCompile(`(?i)\blimit\s+(\d+|all)\b`)

	// Matches one leading EXPLAIN keyword together with any ANALYZE/VERBOSE
	// modifiers or parenthesised option list that follow it.
	explainPrefix = regexp.MustCompile(`(?is)^\s*explain\b\s*(?:\([^)]*\)\s*|analy[sz]e\b\s*|verbose\b\s*)*`)
)

// HasLimit reports whether the statement text already carries a LIMIT clause.
// The check is textual and applies to the whole statement, CTEs included.
func HasLimit(sql string) bool {
	return limitPattern.MatchString(sql)
}

// ApplyRowLimit appends "LIMIT 100" on a new line unless the statement already
// has a LIMIT, so a trailing line comment cannot swallow it. Statements that
// already have one are returned unmodified.
func ApplyRowLimit(sql string) string {
	if HasLimit(sql) {
		return sql
	}
	return fmt.Sprintf("%s\nLIMIT %d", trimStatement(sql), MaxRows)
}

// StripExplain removes any leading EXPLAIN / EXPLAIN ANALYZE prefixes,
// including option lists such as "EXPLAIN (ANALYZE, BUFFERS)".
func StripExplain(sql string) string {
	stmt := trimStatement(sql)
	for {
		loc := explainPrefix.FindStringIndex(stmt)
		if loc == nil || loc[1] == 0 {
			return stmt
		}
		stmt = strings.TrimSpace(stmt[loc[1]:])
	}
}

// NormalizeExplain wraps a statement as "EXPLAIN (FORMAT JSON) <stmt>" after
// stripping any EXPLAIN prefix the caller supplied.
func NormalizeExplain(sql string) string {
	return "EXPLAIN (FORMAT JSON) " + StripExplain(sql)
}

func trimStatement(sql string) string {
	return strings.TrimRight(strings.TrimSpace(sql), "; \t\r\n")
}
