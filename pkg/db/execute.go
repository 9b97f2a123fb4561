package db

import (
	"context"
	"encoding/json"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// ResultColumn describes one column of a query result
type ResultColumn struct {
	Name        string `json:"name"`
	DataTypeOID uint32 `json:"dataTypeOID"`
}

// QueryResult holds the rows of an executed statement keyed by column name.
// Repeated names get a numeric suffix so no value is lost.
type QueryResult struct {
	Columns  []ResultColumn   `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"rowCount"`
}

// ColumnNames returns the column names in result order
func (r *QueryResult) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// Matrix returns the rows as positional values in column order
func (r *QueryResult) Matrix() [][]any {
	out := make([][]any, len(r.Rows))
	for i, row := range r.Rows {
		values := make([]any, len(r.Columns))
		for j, c := range r.Columns {
			values[j] = row[c.Name]
		}
		out[i] = values
	}
	return out
}

// Execute runs a statement and collects every returned row
func Execute(ctx context.Context, q Querier, sql string) (*QueryResult, error) {
	rows, err := q.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	result := &QueryResult{
		Columns: make([]ResultColumn, len(fields)),
		Rows:    []map[string]any{},
	}
	used := make(map[string]bool, len(fields))
	for i, fd := range fields {
		result.Columns[i] = ResultColumn{Name: uniqueName(fd.Name, used), DataTypeOID: fd.DataTypeOID}
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		row := make(map[string]any, len(values))
		for i, v := range values {
			row[result.Columns[i].Name] = normalizeValue(v)
		}
		result.Rows = append(result.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading results: %w", err)
	}
	result.RowCount = len(result.Rows)
	return result, nil
}

// uniqueName returns name, or name_2, name_3... when an earlier column of the
// same result already took it
func uniqueName(name string, used map[string]bool) string {
	candidate := name
	for n := 2; used[candidate]; n++ {
		candidate = fmt.Sprintf("%s_%d", name, n)
	}
	used[candidate] = true
	return candidate
}

// ExplainJSON runs an EXPLAIN (FORMAT JSON) statement and returns the plan document
func ExplainJSON(ctx context.Context, q Querier, explainSQL string) (json.RawMessage, error) {
	var plan string
	if err := q.QueryRow(ctx, explainSQL).Scan(&plan); err != nil {
		return nil, fmt.Errorf("EXPLAIN query failed: %w", err)
	}
	if !json.Valid([]byte(plan)) {
		return nil, fmt.Errorf("EXPLAIN returned a non-JSON plan")
	}
	return json.RawMessage(plan), nil
}

// normalizeValue converts driver values into something encoding/json renders readably
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case [16]byte:
		return uuid.UUID(val).String()
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case netip.Prefix:
		return val.String()
	case pgtype.Numeric:
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case pgtype.Interval:
		return formatInterval(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return val
	}
}

func formatInterval(iv pgtype.Interval) any {
	if !iv.Valid {
		return nil
	}
	d := time.Duration(iv.Microseconds) * time.Microsecond
	switch {
	case iv.Months != 0:
		return fmt.Sprintf("%d mons %d days %s", iv.Months, iv.Days, d)
	case iv.Days != 0:
		return fmt.Sprintf("%d days %s", iv.Days, d)
	default:
		return d.String()
	}
}
