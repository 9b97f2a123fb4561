package db

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Querier is the read surface the introspection and execution helpers need.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Session is one short-lived database session owned by a single tool call.
// It is read-only by contract; schema changes go through a *Conn from Connect.
type Session interface {
	Querier
	Close(ctx context.Context) error
}

// Dialer opens sessions from caller-supplied connection strings.
type Dialer interface {
	Dial(ctx context.Context, connString string) (Session, error)
}

// Ensure the concrete types implement the interfaces
var (
	_ Session = (*Conn)(nil)
	_ Dialer  = PgxDialer{}
)
