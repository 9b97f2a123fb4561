package testutil

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/AliciaSchep/pgchat/pkg/db"
)

// FakeResult is the canned answer to a query
type FakeResult struct {
	Columns []string
	Rows    [][]any
	Err     error
}

// QueryHandler answers a query issued against a fake session
type QueryHandler func(sql string, args []any) FakeResult

// FakeDialer hands out in-memory sessions and counts dials and closes
type FakeDialer struct {
	Handler QueryHandler
	DialErr error

	dials  atomic.Int32
	closes atomic.Int32

	mu      sync.Mutex
	queries []string
}

var _ db.Dialer = (*FakeDialer)(nil)

func (f *FakeDialer) Dial(ctx context.Context, connString string) (db.Session, error) {
	f.dials.Add(1)
	if f.DialErr != nil {
		return nil, f.DialErr
	}
	if connString == "" {
		return nil, db.ErrNoConnectionString
	}
	return &fakeSession{dialer: f}, nil
}

// Dials reports how many sessions were requested
func (f *FakeDialer) Dials() int { return int(f.dials.Load()) }

// Closes reports how many sessions were closed
func (f *FakeDialer) Closes() int { return int(f.closes.Load()) }

// Queries returns every statement issued so far
func (f *FakeDialer) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func (f *FakeDialer) answer(sql string, args []any) FakeResult {
	f.mu.Lock()
	f.queries = append(f.queries, sql)
	f.mu.Unlock()
	if f.Handler == nil {
		return FakeResult{}
	}
	return f.Handler(sql, args)
}

type fakeSession struct {
	dialer *FakeDialer
	closed bool
}

func (s *fakeSession) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := s.dialer.answer(sql, args)
	if res.Err != nil {
		return nil, res.Err
	}
	return &fakeRows{result: res, pos: -1}, nil
}

func (s *fakeSession) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	rows, err := s.Query(ctx, sql, args...)
	return &fakeRow{rows: rows, err: err}
}

func (s *fakeSession) Close(ctx context.Context) error {
	if !s.closed {
		s.closed = true
		s.dialer.closes.Add(1)
	}
	return nil
}

type fakeRows struct {
	result FakeResult
	pos    int
	closed bool
}

func (r *fakeRows) Close()                        { r.closed = true }
func (r *fakeRows) Err() error                    { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) RawValues() [][]byte           { return nil }
func (r *fakeRows) Conn() *pgx.Conn               { return nil }

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	fields := make([]pgconn.FieldDescription, len(r.result.Columns))
	for i, name := range r.result.Columns {
		fields[i] = pgconn.FieldDescription{Name: name}
	}
	return fields
}

func (r *fakeRows) Next() bool {
	if r.closed || r.pos+1 >= len(r.result.Rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Values() ([]any, error) {
	if r.pos < 0 || r.pos >= len(r.result.Rows) {
		return nil, errors.New("no current row")
	}
	return r.result.Rows[r.pos], nil
}

func (r *fakeRows) Scan(dest ...any) error {
	values, err := r.Values()
	if err != nil {
		return err
	}
	if len(dest) != len(values) {
		return fmt.Errorf("scan expected %d destinations, got %d", len(values), len(dest))
	}
	for i, d := range dest {
		if err := assign(d, values[i]); err != nil {
			return fmt.Errorf("column %d: %w", i, err)
		}
	}
	return nil
}

type fakeRow struct {
	rows pgx.Rows
	err  error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	defer r.rows.Close()
	if !r.rows.Next() {
		return pgx.ErrNoRows
	}
	return r.rows.Scan(dest...)
}

// assign copies v into the pointer dest, allocating through pointer-to-pointer
// destinations and leaving them nil for a nil value
func assign(dest, v any) error {
	target := reflect.ValueOf(dest)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		return errors.New("destination must be a non-nil pointer")
	}
	elem := target.Elem()
	if v == nil {
		elem.Set(reflect.Zero(elem.Type()))
		return nil
	}

	src := reflect.ValueOf(v)
	if elem.Kind() == reflect.Pointer && src.Type() != elem.Type() {
		ptr := reflect.New(elem.Type().Elem())
		if err := assign(ptr.Interface(), v); err != nil {
			return err
		}
		elem.Set(ptr)
		return nil
	}
	if src.Type().AssignableTo(elem.Type()) {
		elem.Set(src)
		return nil
	}
	if isNumeric(src.Kind()) && isNumeric(elem.Kind()) {
		elem.Set(src.Convert(elem.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", v, elem.Type())
}

// MatchQuery routes queries to results by a case-insensitive substring of the SQL
func MatchQuery(routes map[string]FakeResult) QueryHandler {
	return func(sql string, args []any) FakeResult {
		lower := strings.ToLower(sql)
		for fragment, res := range routes {
			if strings.Contains(lower, strings.ToLower(fragment)) {
				return res
			}
		}
		return FakeResult{Err: fmt.Errorf("unexpected query: %s", sql)}
	}
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
