package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Output receives every user-facing message printed by this package
var Output io.Writer = os.Stdout

// UserError formats user-facing error messages consistently
func UserError(format string, args ...interface{}) {
	fmt.Fprintf(Output, "❌ %s\n", fmt.Sprintf(format, args...))
}

// UserWarning formats user-facing warning messages consistently
func UserWarning(format string, args ...interface{}) {
	fmt.Fprintf(Output, "⚠️  %s\n", fmt.Sprintf(format, args...))
}

// UserInfo formats user-facing info messages consistently
func UserInfo(format string, args ...interface{}) {
	fmt.Fprintf(Output, "ℹ️  %s\n", fmt.Sprintf(format, args...))
}

// DatabaseError prints a database failure with a friendlier explanation
func DatabaseError(operation string, err error) {
	fmt.Fprintf(Output, "❌ Database %s failed: %s\n", operation, FormatDatabaseError(err))
}

// APIError formats API-related errors with helpful context
func APIError(service string, err error) {
	fmt.Fprintf(Output, "❌ %s error: %v\n", service, err)
}

// FormatDatabaseError turns a driver error into a short explanation followed
// by the original message
func FormatDatabaseError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42P01":
			return "Table or view not found: " + pgErr.Message
		case "42703":
			return "Column not found: " + pgErr.Message
		case "42601":
			return "SQL syntax error: " + pgErr.Message
		case "42501":
			return "Permission denied: " + pgErr.Message
		case "57014":
			return "Query cancelled: " + pgErr.Message
		}
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return "Query timed out: " + msg
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "relation") && strings.Contains(lower, "does not exist"):
		return "Table or view not found: " + msg
	case strings.Contains(lower, "column") && strings.Contains(lower, "does not exist"):
		return "Column not found: " + msg
	case strings.Contains(lower, "syntax error"):
		return "SQL syntax error: " + msg
	case strings.Contains(lower, "permission denied"):
		return "Permission denied: " + msg
	case strings.Contains(lower, "no such host"), strings.Contains(lower, "i/o timeout"):
		return "Network connectivity issue: " + msg
	case strings.Contains(lower, "connection refused"), strings.Contains(lower, "connection closed"),
		strings.Contains(lower, "failed to connect"):
		return "Database connection issue: " + msg
	default:
		return "Database error: " + msg
	}
}
