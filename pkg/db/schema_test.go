package db_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AliciaSchep/pgchat/internal/testutil"
	"github.com/AliciaSchep/pgchat/pkg/db"
)

func fakeSession(t *testing.T, handler testutil.QueryHandler) db.Session {
	t.Helper()
	dialer := &testutil.FakeDialer{Handler: handler}
	s, err := dialer.Dial(context.Background(), "postgres://fake")
	if err != nil {
		t.Fatalf("fake dial failed: %v", err)
	}
	return s
}

func TestListTablesWithColumns_GroupsRows(t *testing.T) {
	str := func(s string) *string { return &s }
	yes, no := true, false

	s := fakeSession(t, func(string, []any) testutil.FakeResult {
		return testutil.FakeResult{
			Columns: []string{"table_schema", "table_name", "column_name", "data_type", "is_nullable"},
			Rows: [][]any{
				{"public", "orders", str("id"), str("integer"), &no},
				{"public", "orders", str("user_id"), str("integer"), &yes},
				{"public", "empty_table", nil, nil, nil},
				{"sales", "orders", str("id"), str("bigint"), &no},
			},
		}
	})

	tables, err := db.ListTablesWithColumns(context.Background(), s)
	if err != nil {
		t.Fatalf("ListTablesWithColumns failed: %v", err)
	}

	if len(tables) != 3 {
		t.Fatalf("expected 3 tables, got %d: %+v", len(tables), tables)
	}
	if tables[0].TableName != "orders" || len(tables[0].Columns) != 2 {
		t.Errorf("unexpected first table: %+v", tables[0])
	}
	if !tables[0].Columns[1].IsNullable || tables[0].Columns[0].IsNullable {
		t.Errorf("nullability not preserved: %+v", tables[0].Columns)
	}
	if tables[1].TableName != "empty_table" || tables[1].Columns == nil || len(tables[1].Columns) != 0 {
		t.Errorf("table without columns should have an empty column list: %+v", tables[1])
	}
	if tables[2].SchemaName != "sales" || tables[2].Columns[0].Type != "bigint" {
		t.Errorf("same table name in another schema must be separate: %+v", tables[2])
	}
}

func TestIntrospection_WrapsQueryErrors(t *testing.T) {
	boom := errors.New("permission denied for relation pg_stats")
	s := fakeSession(t, func(string, []any) testutil.FakeResult { return testutil.FakeResult{Err: boom} })
	ctx := context.Background()

	checks := map[string]func() error{
		"tables":       func() error { _, err := db.ListTablesWithColumns(ctx, s); return err },
		"indexes":      func() error { _, err := db.ListIndexes(ctx, s); return err },
		"index usage":  func() error { _, err := db.GetIndexUsage(ctx, s); return err },
		"table stats":  func() error { _, err := db.GetTableStats(ctx, s); return err },
		"foreign keys": func() error { _, err := db.GetForeignKeys(ctx, s); return err },
		"column stats": func() error { _, err := db.GetColumnStats(ctx, s, ""); return err },
	}

	for name, check := range checks {
		t.Run(name, func(t *testing.T) {
			err := check()
			if !errors.Is(err, boom) {
				t.Errorf("expected wrapped driver error, got %v", err)
			}
		})
	}
}

func TestIntrospectionQueriesExcludeSystemSchemas(t *testing.T) {
	dialer := &testutil.FakeDialer{}
	s, _ := dialer.Dial(context.Background(), "postgres://fake")
	ctx := context.Background()

	_, _ = db.ListTablesWithColumns(ctx, s)
	_, _ = db.ListIndexes(ctx, s)
	_, _ = db.GetForeignKeys(ctx, s)
	_, _ = db.GetColumnStats(ctx, s, "users")

	for _, q := range dialer.Queries() {
		if !strings.Contains(q, "'pg_catalog', 'information_schema', 'pg_toast'") {
			t.Errorf("query does not exclude system schemas:\n%s", q)
		}
	}
}

func TestIntrospection_WithRealDatabase(t *testing.T) {
	connString := testutil.RequireDatabase(t)
	ctx := context.Background()

	err := db.WithSession(ctx, db.PgxDialer{}, connString, func(s db.Session) error {
		tables, err := db.ListTablesWithColumns(ctx, s)
		if err != nil {
			return err
		}
		var users *db.TableColumns
		for i := range tables {
			if tables[i].TableName == "test_users" {
				users = &tables[i]
			}
		}
		if users == nil {
			t.Fatal("test_users not listed")
		}
		if users.Columns[0].Name != "id" || users.Columns[0].IsNullable {
			t.Errorf("expected non-null id as first column, got %+v", users.Columns[0])
		}

		indexes, err := db.ListIndexes(ctx, s)
		if err != nil {
			return err
		}
		found := false
		for _, idx := range indexes {
			if idx.IndexName == "test_orders_user_id_idx" {
				found = strings.Contains(idx.IndexDef, "(user_id)")
			}
		}
		if !found {
			t.Error("expected test_orders_user_id_idx in index list")
		}

		if _, err := db.GetIndexUsage(ctx, s); err != nil {
			return err
		}

		stats, err := db.GetTableStats(ctx, s)
		if err != nil {
			return err
		}
		for i := 1; i < len(stats); i++ {
			if stats[i-1].TotalBytes < stats[i].TotalBytes {
				t.Errorf("table stats not ordered by size: %d < %d", stats[i-1].TotalBytes, stats[i].TotalBytes)
			}
		}

		fks, err := db.GetForeignKeys(ctx, s)
		if err != nil {
			return err
		}
		fkFound := false
		for _, fk := range fks {
			if fk.TableName == "test_orders" && fk.ColumnName == "user_id" {
				fkFound = fk.ForeignTableName == "test_users" && fk.ForeignColumnName == "id"
			}
		}
		if !fkFound {
			t.Errorf("expected test_orders.user_id -> test_users.id, got %+v", fks)
		}

		colStats, err := db.GetColumnStats(ctx, s, "public.test_users")
		if err != nil {
			return err
		}
		for _, cs := range colStats {
			if cs.TableName != "test_users" {
				t.Errorf("column stats filter leaked table %s", cs.TableName)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("introspection failed: %v", err)
	}
}
