package sqlguard

import (
	"errors"
	"testing"
)

func TestDenylistCheck(t *testing.T) {
	guard := NewDenylist()

	tests := []struct {
		name        string
		sql         string
		wantKeyword string
	}{
		{name: "select allowed", sql: "SELECT * FROM users"},
		{name: "count allowed", sql: "select count(*) from orders where status = 'open'"},
		{name: "update passes the heuristic", sql: "UPDATE users SET name = 'x'"},
		{name: "delete rejected", sql: "DELETE FROM users", wantKeyword: "DELETE"},
		{name: "lowercase drop rejected", sql: "drop table users", wantKeyword: "DROP"},
		{name: "mixed case alter rejected", sql: "AlTeR TABLE users ADD COLUMN x int", wantKeyword: "ALTER"},
		{name: "truncate rejected", sql: "TRUNCATE users", wantKeyword: "TRUNCATE"},
		{name: "grant rejected", sql: "GRANT SELECT ON users TO bob", wantKeyword: "GRANT"},
		{name: "revoke rejected", sql: "revoke all on users from bob", wantKeyword: "REVOKE"},
		{name: "keyword inside identifier is rejected", sql: "SELECT deleted_at FROM users", wantKeyword: "DELETE"},
		{name: "first listed keyword wins", sql: "DELETE FROM a; DROP TABLE b", wantKeyword: "DROP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.Check(tt.sql)
			if tt.wantKeyword == "" {
				if err != nil {
					t.Fatalf("Check(%q) unexpected error: %v", tt.sql, err)
				}
				return
			}

			var rejected *RejectedError
			if !errors.As(err, &rejected) {
				t.Fatalf("Check(%q) = %v, want RejectedError", tt.sql, err)
			}
			if rejected.Keyword != tt.wantKeyword {
				t.Errorf("Check(%q) keyword = %s, want %s", tt.sql, rejected.Keyword, tt.wantKeyword)
			}
		})
	}
}

func TestRejectedErrorMessage(t *testing.T) {
	err := NewDenylist().Check("DELETE FROM users")
	if err == nil {
		t.Fatal("expected DELETE to be rejected")
	}
	if got, want := err.Error(), "This action is not allowed DELETE"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestCustomDenylist(t *testing.T) {
	guard := &Denylist{Keywords: []string{"insert"}}

	if err := guard.Check("INSERT INTO t VALUES (1)"); err == nil {
		t.Error("expected custom keyword to be rejected")
	}
	if err := guard.Check("DELETE FROM t"); err != nil {
		t.Errorf("custom list should not include DELETE, got %v", err)
	}
}
