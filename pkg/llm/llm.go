// Package llm adapts external reasoning engines to a single step-oriented port.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AliciaSchep/pgchat/pkg/transcript"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"

	DefaultModel       = "claude-sonnet-4-0"
	DefaultOpenAIModel = "gpt-4o"

	defaultMaxTokens = 4000
)

// Property describes one tool input field.
type Property struct {
	Type        string
	Description string
}

// ToolSpec is the provider-neutral declaration of a callable tool.
type ToolSpec struct {
	Name        string
	Description string
	Properties  map[string]Property
	Required    []string
}

// Request is everything one reasoning step sees.
type Request struct {
	System   string
	Messages []transcript.Message
	Tools    []ToolSpec
}

// Call is a tool invocation requested by the model.
type Call struct {
	ID   string
	Name string
	Args json.RawMessage
}

// Step is the outcome of one model round: either text, tool calls, or both.
type Step struct {
	Text      string
	Reasoning string
	Calls     []Call
}

// Reasoner runs a single model step.
type Reasoner interface {
	Step(ctx context.Context, req Request) (*Step, error)
}

// KeyChecker is implemented by reasoners that can verify their credentials.
type KeyChecker interface {
	CheckKey(ctx context.Context) error
}

// Options select and configure a reasoner.
type Options struct {
	Provider  string
	Model     string
	APIKey    string
	MaxTokens int64
	// BaseURL overrides the provider endpoint, for proxies and gateways
	BaseURL string
}

// ProviderForModel infers the provider from a model name.
func ProviderForModel(model string) string {
	if strings.HasPrefix(strings.ToLower(model), "claude") {
		return ProviderAnthropic
	}
	if model == "" {
		return ProviderAnthropic
	}
	return ProviderOpenAI
}

// New builds a reasoner for the given options.
func New(ctx context.Context, opts Options) (Reasoner, error) {
	provider := opts.Provider
	if provider == "" {
		provider = ProviderForModel(opts.Model)
	}
	switch provider {
	case ProviderAnthropic:
		return NewAnthropic(opts.APIKey, opts.Model, opts.MaxTokens, opts.BaseURL)
	case ProviderOpenAI:
		return NewOpenAI(ctx, opts.APIKey, opts.Model, opts.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func propertiesSchema(props map[string]Property) map[string]interface{} {
	out := make(map[string]interface{}, len(props))
	for name, p := range props {
		out[name] = map[string]interface{}{
			"type":        p.Type,
			"description": p.Description,
		}
	}
	return out
}
