package agent

import (
	"encoding/json"
	"fmt"

	"github.com/AliciaSchep/pgchat/pkg/transcript"
)

// ToolKind is the closed set of tools the model may call
type ToolKind int

const (
	ListTables ToolKind = iota + 1
	ListIndexes
	IndexUsage
	TableStats
	ForeignKeys
	ColumnStats
	Explain
	RunSQL
)

// Wire names are stored in persisted transcripts and must not change
var toolNames = map[ToolKind]string{
	ListTables:  "getPublicTablesWithColumns",
	ListIndexes: "getIndexes",
	IndexUsage:  "getIndexStatsUsage",
	TableStats:  "getTableStats",
	ForeignKeys: "getForeignKeyConstraints",
	ColumnStats: "getColumnStats",
	Explain:     "getExplainForQuery",
	RunSQL:      "runQuery",
}

// AllToolKinds lists every kind in declaration order
func AllToolKinds() []ToolKind {
	return []ToolKind{ListTables, ListIndexes, IndexUsage, TableStats, ForeignKeys, ColumnStats, Explain, RunSQL}
}

func (k ToolKind) String() string {
	if name, ok := toolNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ToolKind(%d)", int(k))
}

// ParseToolKind maps a wire name back to its kind
func ParseToolKind(name string) (ToolKind, bool) {
	for kind, n := range toolNames {
		if n == name {
			return kind, true
		}
	}
	return 0, false
}

// Call is one tool invocation emitted by a reasoning step
type Call struct {
	ID   string
	Kind ToolKind
	// Name is the name the model used, kept for unknown kinds
	Name string
	Args json.RawMessage
}

// Result is the outcome of a tool call: a JSON value, or an error string.
// Tools never return Go errors to the loop.
type Result struct {
	Value json.RawMessage
	Error string
}

// IsError reports whether the call failed
func (r Result) IsError() bool {
	return r.Error != ""
}

// JSON renders the result for the transcript. Errors become JSON strings so
// the model reads them as data.
func (r Result) JSON() json.RawMessage {
	if r.IsError() {
		encoded, _ := json.Marshal(r.Error)
		return encoded
	}
	if len(r.Value) == 0 {
		return json.RawMessage("null")
	}
	return r.Value
}

func errorResult(format string, args ...interface{}) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

func valueResult(v any) Result {
	encoded, err := json.Marshal(v)
	if err != nil {
		return errorResult("Error encoding tool result, %v", err)
	}
	return Result{Value: encoded}
}

// Turn is the input to one orchestration run
type Turn struct {
	// History holds the prior transcript followed by the new user message
	History    []transcript.Message
	ConnString string
}

// Hooks observe tool activity as it happens. Both fire in emission order.
type Hooks struct {
	OnToolCall   func(call Call)
	OnToolResult func(call Call, result Result)
}

func (h Hooks) toolCall(call Call) {
	if h.OnToolCall != nil {
		h.OnToolCall(call)
	}
}

func (h Hooks) toolResult(call Call, result Result) {
	if h.OnToolResult != nil {
		h.OnToolResult(call, result)
	}
}

// State is a position in the orchestration state machine
type State string

const (
	StateIdle              State = "idle"
	StateAwaitingModelStep State = "awaiting-model-step"
	StateToolDispatch      State = "tool-dispatch"
	StateFinalizing        State = "finalizing"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

// Outcome is what a completed run produced
type Outcome struct {
	// Messages are the response messages: one per tool step plus the final answer
	Messages  []transcript.Message
	Answer    string
	Steps     int
	Exhausted bool
	State     State
}

// Transcript returns history followed by the response messages, the form
// that gets persisted
func (o *Outcome) Transcript(history []transcript.Message) []transcript.Message {
	out := make([]transcript.Message, 0, len(history)+len(o.Messages))
	out = append(out, history...)
	return append(out, o.Messages...)
}
