package db_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/AliciaSchep/pgchat/internal/testutil"
	"github.com/AliciaSchep/pgchat/pkg/db"
)

func TestExecute_NormalizesValues(t *testing.T) {
	id := uuid.MustParse("0b5f9a8e-3c3e-4f7a-9a44-2a1d2e4c9f10")
	s := fakeSession(t, func(string, []any) testutil.FakeResult {
		return testutil.FakeResult{
			Columns: []string{"id", "payload", "count", "note"},
			Rows: [][]any{
				{[16]byte(id), []byte("raw"), int64(3), nil},
			},
		}
	})

	res, err := db.Execute(context.Background(), s, "SELECT * FROM things LIMIT 100")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if res.RowCount != 1 {
		t.Fatalf("expected 1 row, got %d", res.RowCount)
	}
	row := res.Rows[0]
	if row["id"] != id.String() {
		t.Errorf("uuid not rendered as string: %v", row["id"])
	}
	if row["payload"] != "raw" {
		t.Errorf("bytes not rendered as string: %v", row["payload"])
	}
	if row["note"] != nil {
		t.Errorf("NULL should stay nil, got %v", row["note"])
	}
	if got := strings.Join(res.ColumnNames(), ","); got != "id,payload,count,note" {
		t.Errorf("unexpected column order %s", got)
	}
	if m := res.Matrix(); m[0][2] != int64(3) {
		t.Errorf("matrix should follow column order, got %v", m[0])
	}

	encoded, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("result should encode: %v", err)
	}
	if !strings.Contains(string(encoded), `"rowCount":1`) {
		t.Errorf("unexpected encoding %s", encoded)
	}

	// a join selecting both tables' id keeps both values
	s = fakeSession(t, func(string, []any) testutil.FakeResult {
		return testutil.FakeResult{
			Columns: []string{"id", "id", "id_2", "name"},
			Rows:    [][]any{{int64(1), int64(2), int64(3), "Alice"}},
		}
	})
	res, err = db.Execute(context.Background(), s, "SELECT u.id, o.id, o.id_2, u.name FROM users u JOIN orders o ON o.user_id = u.id")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := strings.Join(res.ColumnNames(), ","); got != "id,id_2,id_2_2,name" {
		t.Errorf("duplicate columns not renamed: %s", got)
	}
	if got := res.Matrix()[0]; len(got) != 4 || got[0] != int64(1) || got[1] != int64(2) || got[2] != int64(3) || got[3] != "Alice" {
		t.Errorf("duplicate column values lost: %v", got)
	}
	if len(res.Rows[0]) != 4 {
		t.Errorf("expected 4 keys in row, got %v", res.Rows[0])
	}
}

func TestExecute_EmptyResultHasEmptyRows(t *testing.T) {
	s := fakeSession(t, func(string, []any) testutil.FakeResult {
		return testutil.FakeResult{Columns: []string{"id"}}
	})

	res, err := db.Execute(context.Background(), s, "SELECT id FROM t WHERE false LIMIT 100")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	encoded, _ := json.Marshal(res)
	if !strings.Contains(string(encoded), `"rows":[]`) {
		t.Errorf("expected empty rows array, got %s", encoded)
	}
}

func TestExplainJSON(t *testing.T) {
	plan := `[{"Plan":{"Node Type":"Seq Scan","Relation Name":"users"}}]`
	s := fakeSession(t, func(sql string, _ []any) testutil.FakeResult {
		if !strings.HasPrefix(sql, "EXPLAIN (FORMAT JSON)") {
			return testutil.FakeResult{Err: context.Canceled}
		}
		return testutil.FakeResult{Columns: []string{"QUERY PLAN"}, Rows: [][]any{{plan}}}
	})

	raw, err := db.ExplainJSON(context.Background(), s, "EXPLAIN (FORMAT JSON) SELECT * FROM users")
	if err != nil {
		t.Fatalf("ExplainJSON failed: %v", err)
	}
	if string(raw) != plan {
		t.Errorf("expected plan to pass through unchanged, got %s", raw)
	}
}

func TestExecute_WithRealDatabase(t *testing.T) {
	connString := testutil.RequireDatabase(t)
	ctx := context.Background()

	err := db.WithSession(ctx, db.PgxDialer{}, connString, func(s db.Session) error {
		res, err := db.Execute(ctx, s, "SELECT COUNT(*) AS n FROM test_users LIMIT 100")
		if err != nil {
			return err
		}
		if res.Rows[0]["n"] != int64(testutil.SeedUserCount) {
			t.Errorf("expected %d users, got %v", testutil.SeedUserCount, res.Rows[0]["n"])
		}

		// Stacked statements are refused by the extended protocol
		if _, err := db.Execute(ctx, s, "SELECT 1; SELECT 2"); err == nil {
			t.Error("expected stacked statements to be rejected")
		}

		plan, err := db.ExplainJSON(ctx, s, "EXPLAIN (FORMAT JSON) SELECT * FROM test_users")
		if err != nil {
			return err
		}
		var decoded []map[string]any
		if err := json.Unmarshal(plan, &decoded); err != nil || len(decoded) != 1 {
			t.Errorf("expected single plan document, got %s", plan)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
}
