package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AliciaSchep/pgchat/internal/logger"
	"github.com/AliciaSchep/pgchat/pkg/db"
	"github.com/AliciaSchep/pgchat/pkg/sqlguard"
)

// DefaultQueryTimeout bounds a single tool call, connect included
const DefaultQueryTimeout = 15 * time.Second

// Toolset resolves tool calls against the target database. Every call opens
// its own session and closes it before returning.
type Toolset struct {
	Dialer       db.Dialer
	Guard        sqlguard.Guard
	QueryTimeout time.Duration
	Log          *logger.Logger
}

// NewToolset wires the default dialer and denylist
func NewToolset(log *logger.Logger) *Toolset {
	return &Toolset{
		Dialer:       db.PgxDialer{},
		Guard:        sqlguard.NewDenylist(),
		QueryTimeout: DefaultQueryTimeout,
		Log:          log,
	}
}

type queryArgs struct {
	Query string `json:"query"`
}

type columnStatsArgs struct {
	TableName string `json:"tableName"`
}

// Dispatch resolves one call. It never returns a Go error and never panics:
// every failure becomes an error-string result.
func (t *Toolset) Dispatch(ctx context.Context, connString string, call Call) (result Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = errorResult("Error running tool %s, %v", call.Name, r)
		}
		t.logger().Debug("tool call resolved",
			"tool", call.Name,
			"call_id", call.ID,
			"is_error", result.IsError(),
			"duration", time.Since(start))
	}()

	switch call.Kind {
	case ListTables:
		return t.inspect(ctx, connString, "Error fetching tables with columns", func(ctx context.Context, s db.Session) (any, error) {
			return db.ListTablesWithColumns(ctx, s)
		})
	case ListIndexes:
		return t.inspect(ctx, connString, "Error fetching indexes", func(ctx context.Context, s db.Session) (any, error) {
			return db.ListIndexes(ctx, s)
		})
	case IndexUsage:
		return t.inspect(ctx, connString, "Error fetching index stats usage", func(ctx context.Context, s db.Session) (any, error) {
			return db.GetIndexUsage(ctx, s)
		})
	case TableStats:
		return t.inspect(ctx, connString, "Error fetching table stats", func(ctx context.Context, s db.Session) (any, error) {
			return db.GetTableStats(ctx, s)
		})
	case ForeignKeys:
		return t.inspect(ctx, connString, "Error fetching foreign key constraints", func(ctx context.Context, s db.Session) (any, error) {
			return db.GetForeignKeys(ctx, s)
		})
	case ColumnStats:
		var args columnStatsArgs
		if err := decodeArgs(call.Args, &args); err != nil {
			return errorResult("Error fetching column stats, %v", err)
		}
		return t.inspect(ctx, connString, "Error fetching column stats", func(ctx context.Context, s db.Session) (any, error) {
			return db.GetColumnStats(ctx, s, strings.TrimSpace(args.TableName))
		})
	case Explain:
		var args queryArgs
		if err := decodeQueryArgs(call.Args, &args); err != nil {
			return errorResult("Error fetching explain for query, %v", err)
		}
		return t.Explain(ctx, connString, args.Query)
	case RunSQL:
		var args queryArgs
		if err := decodeQueryArgs(call.Args, &args); err != nil {
			return errorResult("Error running query, %v", err)
		}
		return t.RunSQL(ctx, connString, args.Query)
	default:
		return errorResult("Tool '%s' not found", call.Name)
	}
}

// Explain wraps the statement as EXPLAIN (FORMAT JSON) and returns the plan
func (t *Toolset) Explain(ctx context.Context, connString, query string) Result {
	explainSQL := sqlguard.NormalizeExplain(query)
	return t.inspect(ctx, connString, "Error fetching explain for query", func(ctx context.Context, s db.Session) (any, error) {
		return db.ExplainJSON(ctx, s, explainSQL)
	})
}

// RunSQL checks the statement against the guard before any connection is
// opened, caps the row count and executes it
func (t *Toolset) RunSQL(ctx context.Context, connString, query string) Result {
	if err := t.guard().Check(query); err != nil {
		var rejected *sqlguard.RejectedError
		if errors.As(err, &rejected) {
			t.logger().Info("query rejected", "keyword", rejected.Keyword)
		}
		return Result{Error: err.Error()}
	}

	limited := sqlguard.ApplyRowLimit(query)
	return t.inspect(ctx, connString, "Error running query", func(ctx context.Context, s db.Session) (any, error) {
		return db.Execute(ctx, s, limited)
	})
}

// inspect runs fn on a fresh session under the per-tool timeout. The timeout
// context is detached from the caller so a cancelled turn does not abort a
// query that is already in flight.
func (t *Toolset) inspect(ctx context.Context, connString, failure string, fn func(context.Context, db.Session) (any, error)) Result {
	timeout := t.QueryTimeout
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	var value any
	err := db.WithSession(callCtx, t.dialer(), connString, func(s db.Session) error {
		var err error
		value, err = fn(callCtx, s)
		return err
	})
	if err != nil {
		t.logger().Warn(failure, "error", err)
		return errorResult("%s, %v", failure, err)
	}

	if raw, ok := value.(json.RawMessage); ok {
		return Result{Value: raw}
	}
	return valueResult(value)
}

func (t *Toolset) dialer() db.Dialer {
	if t.Dialer == nil {
		return db.PgxDialer{}
	}
	return t.Dialer
}

func (t *Toolset) guard() sqlguard.Guard {
	if t.Guard == nil {
		return sqlguard.NewDenylist()
	}
	return t.Guard
}

func (t *Toolset) logger() *logger.Logger {
	if t.Log == nil {
		return logger.Nop()
	}
	return t.Log
}

func decodeArgs(raw json.RawMessage, v any) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func decodeQueryArgs(raw json.RawMessage, args *queryArgs) error {
	if err := decodeArgs(raw, args); err != nil {
		return err
	}
	if strings.TrimSpace(args.Query) == "" {
		return fmt.Errorf("query is required")
	}
	return nil
}
