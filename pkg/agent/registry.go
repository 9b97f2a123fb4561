package agent

import (
	"fmt"

	"github.com/AliciaSchep/pgchat/pkg/llm"
)

const (
	ModeDefault    = "default"
	ModeSchemaOnly = "schema-only"
)

type toolDescriptor struct {
	description string
	label       string
	properties  map[string]llm.Property
	required    []string
}

var queryProperty = map[string]llm.Property{
	"query": {Type: "string", Description: "The SQL query to analyze"},
}

var descriptors = map[ToolKind]toolDescriptor{
	ListTables: {
		description: "Retrieves a list of tables and their columns from the connected PostgreSQL database.",
		label:       "Fetching tables and columns",
	},
	ListIndexes: {
		description: "Retrieves the indexes present in the connected database.",
		label:       "Fetching indexes",
	},
	IndexUsage: {
		description: "Retrieves usage statistics for indexes in the database.",
		label:       "Fetching index usage statistics",
	},
	TableStats: {
		description: "Retrieves statistics about tables, including row counts and sizes.",
		label:       "Fetching table statistics",
	},
	ForeignKeys: {
		description: "Retrieves information about foreign key relationships between tables.",
		label:       "Fetching foreign key constraints",
	},
	ColumnStats: {
		description: "Retrieves planner statistics per column (distinct values, null fraction, most common values). Optionally restricted to one table.",
		label:       "Fetching column statistics",
		properties: map[string]llm.Property{
			"tableName": {Type: "string", Description: "Optional table name, either 'users' or 'schema.users'"},
		},
	},
	Explain: {
		description: "Analyzes a given SQL query, providing a detailed execution plan in JSON format. If the query is not valid, it returns an error message. The function itself will add the EXPLAIN keyword to the query, so you don't need to include it.",
		label:       "Explaining query",
		properties:  queryProperty,
		required:    []string{"query"},
	},
	RunSQL: {
		description: "Runs a read-only SQL query and returns at most 100 rows. Statements containing DROP, DELETE, ALTER, TRUNCATE, GRANT or REVOKE are refused.",
		label:       "Running query",
		properties: map[string]llm.Property{
			"query": {Type: "string", Description: "The SQL query to run"},
		},
		required: []string{"query"},
	},
}

// ToolRegistry is the set of tool kinds exposed to the model for a session
type ToolRegistry struct {
	kinds   []ToolKind
	enabled map[ToolKind]bool
}

// NewToolRegistry exposes the given kinds, or every kind when none are given
func NewToolRegistry(kinds ...ToolKind) *ToolRegistry {
	if len(kinds) == 0 {
		kinds = AllToolKinds()
	}
	r := &ToolRegistry{enabled: make(map[ToolKind]bool, len(kinds))}
	for _, k := range kinds {
		if _, ok := descriptors[k]; !ok || r.enabled[k] {
			continue
		}
		r.kinds = append(r.kinds, k)
		r.enabled[k] = true
	}
	return r
}

// RegistryForMode returns the registry for a REPL mode. Schema-only mode hides
// tools that read data, sizes or plans.
func RegistryForMode(mode string) (*ToolRegistry, error) {
	switch mode {
	case "", ModeDefault:
		return NewToolRegistry(), nil
	case ModeSchemaOnly:
		return NewToolRegistry(ListTables, ListIndexes, ForeignKeys), nil
	default:
		return nil, fmt.Errorf("invalid mode: %s (must be '%s' or '%s')", mode, ModeDefault, ModeSchemaOnly)
	}
}

// Enabled reports whether the model may call kind
func (r *ToolRegistry) Enabled(kind ToolKind) bool {
	return r.enabled[kind]
}

// Kinds returns the exposed kinds in declaration order
func (r *ToolRegistry) Kinds() []ToolKind {
	return append([]ToolKind(nil), r.kinds...)
}

// Specs returns the provider-neutral declarations for the exposed tools
func (r *ToolRegistry) Specs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(r.kinds))
	for _, k := range r.kinds {
		d := descriptors[k]
		specs = append(specs, llm.ToolSpec{
			Name:        k.String(),
			Description: d.description,
			Properties:  d.properties,
			Required:    d.required,
		})
	}
	return specs
}

// Label is a short human description of what a tool call is doing
func Label(kind ToolKind) string {
	if d, ok := descriptors[kind]; ok {
		return d.label
	}
	return "Calling unknown tool"
}
