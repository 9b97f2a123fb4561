package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/AliciaSchep/pgchat/pkg/transcript"
)

// Anthropic runs steps against the Anthropic Messages API.
type Anthropic struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic creates a reasoner. An empty key falls back to ANTHROPIC_API_KEY.
func NewAnthropic(apiKey, model string, maxTokens int64, baseURL string) (*Anthropic, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required (set ANTHROPIC_API_KEY environment variable)")
	}
	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(reqOpts...)
	return &Anthropic{client: &client, model: model, maxTokens: maxTokens}, nil
}

func (a *Anthropic) Step(ctx context.Context, req Request) (*Step, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages:  toAnthropicMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}

	step := &Step{}
	for _, content := range message.Content {
		switch content.Type {
		case "text":
			step.Text += content.Text
		case "thinking":
			step.Reasoning += content.Thinking
		case "tool_use":
			step.Calls = append(step.Calls, Call{ID: content.ID, Name: content.Name, Args: content.Input})
		}
	}
	return step, nil
}

// CheckKey lists models, which fails fast on an invalid key.
func (a *Anthropic) CheckKey(ctx context.Context) error {
	if _, err := a.client.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		return fmt.Errorf("anthropic key check failed: %w", err)
	}
	return nil
}

func toAnthropicTools(specs []ToolSpec) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, len(specs))
	for i, spec := range specs {
		tools[i] = anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			Type:       "object",
			Properties: propertiesSchema(spec.Properties),
			Required:   spec.Required,
		}, spec.Name)
		tools[i].OfTool.Description = anthropic.String(spec.Description)
	}
	return tools
}

// toAnthropicMessages flattens the transcript into alternating API messages.
// Resolved tool invocations become a tool_use block on the assistant side
// followed by a tool_result block on the user side.
func toAnthropicMessages(messages []transcript.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case transcript.RoleUser:
			if text := m.Text(); text != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
			}
		case transcript.RoleAssistant:
			var blocks, results []anthropic.ContentBlockParamUnion
			for _, p := range m.Parts {
				switch p.Type {
				case transcript.PartText:
					if p.Text != "" {
						blocks = append(blocks, anthropic.NewTextBlock(p.Text))
					}
				case transcript.PartToolInvocation:
					inv := p.ToolInvocation
					if inv == nil || !inv.Resolved() {
						continue
					}
					blocks = append(blocks, anthropic.NewToolUseBlock(inv.ToolCallID, inv.ArgsOrEmpty(), inv.ToolName))
					results = append(results, anthropic.NewToolResultBlock(inv.ToolCallID, inv.ResultText(), inv.IsError))
				}
			}
			if len(m.Parts) == 0 && m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
			if len(results) > 0 {
				out = append(out, anthropic.NewUserMessage(results...))
			}
		case transcript.RoleTool:
			var results []anthropic.ContentBlockParamUnion
			for _, inv := range m.Invocations() {
				if inv.Resolved() {
					results = append(results, anthropic.NewToolResultBlock(inv.ToolCallID, inv.ResultText(), inv.IsError))
				}
			}
			if len(results) > 0 {
				out = append(out, anthropic.NewUserMessage(results...))
			}
		}
	}
	return out
}
