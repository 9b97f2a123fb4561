package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrNoConnectionString is returned when a caller supplies an empty connection string.
var ErrNoConnectionString = errors.New("no connection string provided")

// Conn wraps a single pgx connection.
type Conn struct {
	conn *pgx.Conn
}

// PgxDialer opens one pgx connection per Dial. There is no pooling and no retry.
type PgxDialer struct{}

// Dial opens a session through Connect
func (PgxDialer) Dial(ctx context.Context, connString string) (Session, error) {
	conn, err := Connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Connect parses the connection string, connects and pings. The connection is
// closed again if the ping fails.
func Connect(ctx context.Context, connString string) (*Conn, error) {
	if connString == "" {
		return nil, ErrNoConnectionString
	}

	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string: %w", err)
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Conn{conn: conn}, nil
}

// Close closes the underlying connection
func (c *Conn) Close(ctx context.Context) error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close(ctx)
}

// Query executes a query and returns the rows
func (c *Conn) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return c.conn.Query(ctx, sql, args...)
}

// QueryRow executes a query that returns at most one row
func (c *Conn) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return c.conn.QueryRow(ctx, sql, args...)
}

// Exec executes a statement without returning any rows
func (c *Conn) Exec(ctx context.Context, sql string, args ...interface{}) error {
	_, err := c.conn.Exec(ctx, sql, args...)
	return err
}

// WithSession opens a session, runs fn and closes the session on every exit
// path, including a panic inside fn.
func WithSession(ctx context.Context, dialer Dialer, connString string, fn func(Session) error) (err error) {
	session, err := dialer.Dial(ctx, connString)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := session.Close(context.WithoutCancel(ctx)); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close connection: %w", closeErr)
		}
	}()
	return fn(session)
}

// Ping opens a session and runs SELECT 1.
func Ping(ctx context.Context, dialer Dialer, connString string) error {
	return WithSession(ctx, dialer, connString, func(s Session) error {
		var one int
		if err := s.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
			return fmt.Errorf("failed to query database: %w", err)
		}
		return nil
	})
}

// DatabaseInfo holds basic information about the connected server
type DatabaseInfo struct {
	Database string
	User     string
	Version  string
}

// GetDatabaseInfo returns the current database, user and server version
func GetDatabaseInfo(ctx context.Context, q Querier) (*DatabaseInfo, error) {
	info := &DatabaseInfo{}
	err := q.QueryRow(ctx, "SELECT current_database(), current_user, version()").
		Scan(&info.Database, &info.User, &info.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to get PostgreSQL version: %w", err)
	}
	return info, nil
}
