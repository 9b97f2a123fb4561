package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AliciaSchep/pgchat/internal/testutil"
)

const fakeConn = "postgres://user@fake/db"

func str(s string) *string { return &s }

// catalogHandler answers every introspection query with a small fixed catalog
func catalogHandler(sql string, _ []any) testutil.FakeResult {
	notNull := false
	switch {
	case strings.HasPrefix(sql, "EXPLAIN (FORMAT JSON)"):
		return testutil.FakeResult{Columns: []string{"QUERY PLAN"}, Rows: [][]any{{`[{"Plan":{"Node Type":"Seq Scan"}}]`}}}
	case strings.Contains(sql, "information_schema.tables"):
		return testutil.FakeResult{
			Columns: []string{"table_schema", "table_name", "column_name", "data_type", "is_nullable"},
			Rows:    [][]any{{"public", "users", str("id"), str("integer"), &notNull}},
		}
	case strings.Contains(sql, "FROM pg_indexes"):
		return testutil.FakeResult{
			Columns: []string{"indexname", "tablename", "schemaname", "indexdef"},
			Rows:    [][]any{{"users_pkey", "users", "public", "CREATE UNIQUE INDEX users_pkey ON public.users USING btree (id)"}},
		}
	case strings.Contains(sql, "COUNT(*)"):
		return testutil.FakeResult{Columns: []string{"total_users"}, Rows: [][]any{{int64(42)}}}
	default:
		return testutil.FakeResult{}
	}
}

func newTestToolset(handler testutil.QueryHandler) (*Toolset, *testutil.FakeDialer) {
	dialer := &testutil.FakeDialer{Handler: handler}
	ts := NewToolset(nil)
	ts.Dialer = dialer
	ts.QueryTimeout = time.Second
	return ts, dialer
}

func TestRunSQL_RejectsBeforeConnecting(t *testing.T) {
	tests := []struct {
		query    string
		expected string
	}{
		{query: "DELETE FROM users", expected: "This action is not allowed DELETE"},
		{query: "drop table users", expected: "This action is not allowed DROP"},
		{query: "ALTER TABLE users ADD COLUMN x int", expected: "This action is not allowed ALTER"},
		{query: "truncate users", expected: "This action is not allowed TRUNCATE"},
		{query: "GRANT SELECT ON users TO bob", expected: "This action is not allowed GRANT"},
		{query: "revoke all on users from bob", expected: "This action is not allowed REVOKE"},
		{query: "SELECT deleted_at FROM users", expected: "This action is not allowed DELETE"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			ts, dialer := newTestToolset(catalogHandler)

			res := ts.Dispatch(context.Background(), fakeConn, Call{
				ID: "c1", Kind: RunSQL, Name: "runQuery",
				Args: json.RawMessage(`{"query":` + mustJSON(t, tt.query) + `}`),
			})

			if res.Error != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, res.Error)
			}
			if dialer.Dials() != 0 {
				t.Errorf("rejected statement must not open a connection, got %d dials", dialer.Dials())
			}
		})
	}
}

func TestRunSQL_RowLimit(t *testing.T) {
	tests := []struct {
		query    string
		executed string
	}{
		{query: "SELECT COUNT(*) AS total_users FROM users;", executed: "SELECT COUNT(*) AS total_users FROM users\nLIMIT 100"},
		{query: "SELECT * FROM users LIMIT 5", executed: "SELECT * FROM users LIMIT 5"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			ts, dialer := newTestToolset(catalogHandler)

			res := ts.RunSQL(context.Background(), fakeConn, tt.query)
			if res.IsError() {
				t.Fatalf("unexpected error: %s", res.Error)
			}

			queries := dialer.Queries()
			if len(queries) != 1 || queries[0] != tt.executed {
				t.Errorf("expected executed statement %q, got %v", tt.executed, queries)
			}
			if dialer.Closes() != dialer.Dials() {
				t.Errorf("connection leak: %d dials, %d closes", dialer.Dials(), dialer.Closes())
			}
		})
	}
}

func TestExplain_StripsExistingPrefix(t *testing.T) {
	for _, q := range []string{"EXPLAIN SELECT 1", "explain analyze select 1", "SELECT 1"} {
		t.Run(q, func(t *testing.T) {
			ts, dialer := newTestToolset(catalogHandler)

			res := ts.Explain(context.Background(), fakeConn, q)
			if res.IsError() {
				t.Fatalf("unexpected error: %s", res.Error)
			}
			if !strings.Contains(string(res.Value), "Seq Scan") {
				t.Errorf("expected plan JSON, got %s", res.Value)
			}

			executed := dialer.Queries()[0]
			if !strings.EqualFold(executed, "EXPLAIN (FORMAT JSON) SELECT 1") {
				t.Errorf("unexpected explain statement %q", executed)
			}
		})
	}
}

func TestDispatch_EveryKindSucceeds(t *testing.T) {
	args := map[ToolKind]string{
		ColumnStats: `{"tableName":"users"}`,
		Explain:     `{"query":"SELECT * FROM users"}`,
		RunSQL:      `{"query":"SELECT COUNT(*) FROM users"}`,
	}

	for _, kind := range AllToolKinds() {
		t.Run(kind.String(), func(t *testing.T) {
			ts, dialer := newTestToolset(catalogHandler)

			res := ts.Dispatch(context.Background(), fakeConn, Call{
				ID: "c1", Kind: kind, Name: kind.String(), Args: json.RawMessage(args[kind]),
			})

			if res.IsError() {
				t.Fatalf("unexpected error result: %s", res.Error)
			}
			if !json.Valid(res.JSON()) {
				t.Errorf("result is not valid JSON: %s", res.JSON())
			}
			if dialer.Dials() != 1 || dialer.Closes() != 1 {
				t.Errorf("expected exactly one session, got %d dials and %d closes", dialer.Dials(), dialer.Closes())
			}
		})
	}
}

func TestDispatch_FailuresBecomeStrings(t *testing.T) {
	failing := func(string, []any) testutil.FakeResult {
		return testutil.FakeResult{Err: errors.New("permission denied")}
	}

	tests := []struct {
		kind   ToolKind
		args   string
		prefix string
	}{
		{kind: ListTables, prefix: "Error fetching tables with columns, "},
		{kind: ListIndexes, prefix: "Error fetching indexes, "},
		{kind: IndexUsage, prefix: "Error fetching index stats usage, "},
		{kind: TableStats, prefix: "Error fetching table stats, "},
		{kind: ForeignKeys, prefix: "Error fetching foreign key constraints, "},
		{kind: ColumnStats, prefix: "Error fetching column stats, "},
		{kind: Explain, args: `{"query":"SELECT 1"}`, prefix: "Error fetching explain for query, "},
		{kind: RunSQL, args: `{"query":"SELECT 1"}`, prefix: "Error running query, "},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			ts, dialer := newTestToolset(failing)

			res := ts.Dispatch(context.Background(), fakeConn, Call{
				ID: "c1", Kind: tt.kind, Name: tt.kind.String(), Args: json.RawMessage(tt.args),
			})

			if !strings.HasPrefix(res.Error, tt.prefix) || !strings.Contains(res.Error, "permission denied") {
				t.Errorf("expected error starting with %q, got %q", tt.prefix, res.Error)
			}
			if dialer.Closes() != dialer.Dials() {
				t.Errorf("connection leak after failure")
			}
		})
	}
}

func TestDispatch_BadInput(t *testing.T) {
	ts, dialer := newTestToolset(catalogHandler)
	ctx := context.Background()

	unknown := ts.Dispatch(ctx, fakeConn, Call{ID: "c1", Name: "dropEverything"})
	if unknown.Error != "Tool 'dropEverything' not found" {
		t.Errorf("unexpected unknown-tool result %q", unknown.Error)
	}

	missing := ts.Dispatch(ctx, fakeConn, Call{ID: "c2", Kind: Explain, Name: "getExplainForQuery", Args: json.RawMessage(`{}`)})
	if !strings.HasPrefix(missing.Error, "Error fetching explain for query") {
		t.Errorf("expected missing query error, got %q", missing.Error)
	}

	malformed := ts.Dispatch(ctx, fakeConn, Call{ID: "c3", Kind: RunSQL, Name: "runQuery", Args: json.RawMessage(`{"query":`)})
	if !malformed.IsError() {
		t.Error("expected malformed args to produce an error result")
	}

	noConn := ts.Dispatch(ctx, "", Call{ID: "c4", Kind: ListIndexes, Name: "getIndexes"})
	if !strings.Contains(noConn.Error, "no connection string provided") {
		t.Errorf("expected missing connection error, got %q", noConn.Error)
	}

	if dialer.Dials() != 1 {
		t.Errorf("only the empty-connection call should have dialed, got %d", dialer.Dials())
	}
}

func TestDispatch_RecoversFromPanics(t *testing.T) {
	ts, dialer := newTestToolset(func(string, []any) testutil.FakeResult { panic("driver bug") })

	res := ts.Dispatch(context.Background(), fakeConn, Call{ID: "c1", Kind: ListIndexes, Name: "getIndexes"})
	if !strings.Contains(res.Error, "driver bug") {
		t.Errorf("expected panic to surface as error string, got %q", res.Error)
	}
	if dialer.Closes() != 1 {
		t.Errorf("session must be closed after a panic")
	}
}

func TestDispatch_IgnoresTurnCancellation(t *testing.T) {
	ts, _ := newTestToolset(catalogHandler)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := ts.Dispatch(ctx, fakeConn, Call{ID: "c1", Kind: ListIndexes, Name: "getIndexes"})
	if res.IsError() {
		t.Errorf("tool calls run detached from turn cancellation, got %q", res.Error)
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}
