package errors

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestFormatDatabaseError(t *testing.T) {
	tests := []struct {
		name     string
		input    error
		expected string
	}{
		{
			name:     "table not found error",
			input:    fmt.Errorf(`ERROR: relation "nonexistent_table" does not exist`),
			expected: "Table or view not found",
		},
		{
			name:     "column not found error",
			input:    fmt.Errorf(`ERROR: column "nonexistent_column" does not exist`),
			expected: "Column not found",
		},
		{
			name:     "syntax error",
			input:    fmt.Errorf(`ERROR: syntax error at or near "SELCT"`),
			expected: "SQL syntax error",
		},
		{
			name:     "permission denied error",
			input:    fmt.Errorf(`ERROR: permission denied for table users`),
			expected: "Permission denied",
		},
		{
			name:     "connection refused error",
			input:    fmt.Errorf(`dial tcp 127.0.0.1:5432: connection refused`),
			expected: "Database connection issue",
		},
		{
			name:     "network error",
			input:    fmt.Errorf(`dial tcp: lookup postgres: no such host`),
			expected: "Network connectivity issue",
		},
		{
			name:     "pg error code",
			input:    fmt.Errorf("query failed: %w", &pgconn.PgError{Code: "42P01", Message: `relation "x" does not exist`}),
			expected: "Table or view not found",
		},
		{
			name:     "deadline",
			input:    fmt.Errorf("query failed: %w", context.DeadlineExceeded),
			expected: "Query timed out",
		},
		{
			name:     "generic database error",
			input:    fmt.Errorf(`some other database error`),
			expected: "Database error: some other database error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FormatDatabaseError(tt.input)
			if !strings.Contains(result, tt.expected) {
				t.Errorf("FormatDatabaseError() = %v, want to contain %v", result, tt.expected)
			}
		})
	}

	if FormatDatabaseError(nil) != "" {
		t.Error("nil error should format as empty string")
	}
}
