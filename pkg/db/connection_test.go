package db_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/AliciaSchep/pgchat/internal/testutil"
	"github.com/AliciaSchep/pgchat/pkg/db"
)

func TestPgxDialer_Errors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	tests := []struct {
		name       string
		connString string
		wantErr    string
	}{
		{name: "empty connection string", connString: "", wantErr: "no connection string provided"},
		{name: "unparseable connection string", connString: "postgres://user@host:notaport/db", wantErr: "invalid connection string"},
		{name: "unreachable server", connString: "postgres://user@127.0.0.1:1/db?connect_timeout=1", wantErr: "failed to connect to database"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, err := db.PgxDialer{}.Dial(ctx, tt.connString)
			if err == nil {
				_ = session.Close(ctx)
				t.Fatal("expected dial error but got none")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}

			conn, err := db.Connect(ctx, tt.connString)
			if err == nil {
				_ = conn.Close(ctx)
				t.Fatal("expected connect error but got none")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSession_HasNoWriteMethod(t *testing.T) {
	session := reflect.TypeOf((*db.Session)(nil)).Elem()
	if _, ok := session.MethodByName("Exec"); ok {
		t.Error("tool sessions should not expose Exec")
	}
	if _, ok := reflect.TypeOf(&db.Conn{}).MethodByName("Exec"); !ok {
		t.Error("Conn should keep Exec for fixtures")
	}
}

func TestWithSession_ClosesOnEveryPath(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		dialer := &testutil.FakeDialer{}
		err := db.WithSession(ctx, dialer, "postgres://fake", func(db.Session) error { return nil })
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dialer.Dials() != 1 || dialer.Closes() != 1 {
			t.Errorf("expected 1 dial and 1 close, got %d/%d", dialer.Dials(), dialer.Closes())
		}
	})

	t.Run("callback error", func(t *testing.T) {
		dialer := &testutil.FakeDialer{}
		boom := errors.New("boom")
		err := db.WithSession(ctx, dialer, "postgres://fake", func(db.Session) error { return boom })
		if !errors.Is(err, boom) {
			t.Fatalf("expected callback error, got %v", err)
		}
		if dialer.Closes() != 1 {
			t.Errorf("session not closed after error")
		}
	})

	t.Run("panic", func(t *testing.T) {
		dialer := &testutil.FakeDialer{}
		func() {
			defer func() {
				if recover() == nil {
					t.Error("expected panic to propagate")
				}
			}()
			_ = db.WithSession(ctx, dialer, "postgres://fake", func(db.Session) error { panic("unexpected") })
		}()
		if dialer.Closes() != 1 {
			t.Errorf("session not closed after panic")
		}
	})

	t.Run("dial failure", func(t *testing.T) {
		dialer := &testutil.FakeDialer{DialErr: errors.New("refused")}
		called := false
		err := db.WithSession(ctx, dialer, "postgres://fake", func(db.Session) error {
			called = true
			return nil
		})
		if err == nil || called {
			t.Errorf("expected dial error without running callback, err=%v called=%v", err, called)
		}
		if dialer.Closes() != 0 {
			t.Errorf("nothing to close after failed dial, got %d closes", dialer.Closes())
		}
	})
}

func TestPing_Fake(t *testing.T) {
	dialer := &testutil.FakeDialer{Handler: testutil.MatchQuery(map[string]testutil.FakeResult{
		"select 1": {Columns: []string{"?column?"}, Rows: [][]any{{int32(1)}}},
	})}

	if err := db.Ping(context.Background(), dialer, "postgres://fake"); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if dialer.Closes() != 1 {
		t.Errorf("expected ping session to be closed")
	}
}

func TestGetDatabaseInfo_WithRealDatabase(t *testing.T) {
	connString := testutil.RequireDatabase(t)
	ctx := context.Background()
	cfg := testutil.GetRealDatabaseConfig()

	err := db.WithSession(ctx, db.PgxDialer{}, connString, func(s db.Session) error {
		info, err := db.GetDatabaseInfo(ctx, s)
		if err != nil {
			return err
		}
		if info.Database != cfg.Database {
			t.Errorf("expected database %s, got %s", cfg.Database, info.Database)
		}
		if !strings.Contains(info.Version, "PostgreSQL") {
			t.Errorf("unexpected version string %q", info.Version)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("GetDatabaseInfo failed: %v", err)
	}
}
