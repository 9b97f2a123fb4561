package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	goopenai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/AliciaSchep/pgchat/pkg/transcript"
)

// OpenAI runs steps through eino's OpenAI chat model.
type OpenAI struct {
	chatModel model.ToolCallingChatModel
	client    *goopenai.Client
}

// NewOpenAI creates a reasoner. An empty key falls back to OPENAI_API_KEY and
// an empty baseURL to the public API.
func NewOpenAI(ctx context.Context, apiKey, modelName, baseURL string) (*OpenAI, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required (set OPENAI_API_KEY environment variable)")
	}
	if modelName == "" {
		modelName = DefaultOpenAIModel
	}

	chatModel, err := einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
		APIKey:  apiKey,
		Model:   modelName,
		BaseURL: baseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create openai chat model: %w", err)
	}

	clientConf := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConf.BaseURL = baseURL
	}
	return &OpenAI{chatModel: chatModel, client: goopenai.NewClientWithConfig(clientConf)}, nil
}

// CheckKey lists models, which fails fast on an invalid key.
func (o *OpenAI) CheckKey(ctx context.Context) error {
	if _, err := o.client.ListModels(ctx); err != nil {
		return fmt.Errorf("openai key check failed: %w", err)
	}
	return nil
}

func (o *OpenAI) Step(ctx context.Context, req Request) (*Step, error) {
	chatModel := o.chatModel
	if len(req.Tools) > 0 {
		withTools, err := o.chatModel.WithTools(toEinoTools(req.Tools))
		if err != nil {
			return nil, fmt.Errorf("failed to bind tools: %w", err)
		}
		chatModel = withTools
	}

	resp, err := chatModel.Generate(ctx, toEinoMessages(req.System, req.Messages))
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}

	step := &Step{Text: resp.Content, Reasoning: resp.ReasoningContent}
	for _, tc := range resp.ToolCalls {
		step.Calls = append(step.Calls, Call{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: json.RawMessage(tc.Function.Arguments),
		})
	}
	return step, nil
}

func toEinoTools(specs []ToolSpec) []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, len(specs))
	for i, spec := range specs {
		params := make(map[string]*schema.ParameterInfo, len(spec.Properties))
		for name, p := range spec.Properties {
			params[name] = &schema.ParameterInfo{
				Type:     schema.DataType(p.Type),
				Desc:     p.Description,
				Required: contains(spec.Required, name),
			}
		}
		infos[i] = &schema.ToolInfo{
			Name:        spec.Name,
			Desc:        spec.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		}
	}
	return infos
}

func toEinoMessages(system string, messages []transcript.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages)+1)
	if system != "" {
		out = append(out, schema.SystemMessage(system))
	}
	for _, m := range messages {
		switch m.Role {
		case transcript.RoleUser:
			if text := m.Text(); text != "" {
				out = append(out, schema.UserMessage(text))
			}
		case transcript.RoleAssistant:
			var calls []schema.ToolCall
			var results []*schema.Message
			for _, inv := range m.Invocations() {
				if !inv.Resolved() {
					continue
				}
				calls = append(calls, schema.ToolCall{
					ID:   inv.ToolCallID,
					Type: "function",
					Function: schema.FunctionCall{
						Name:      inv.ToolName,
						Arguments: string(inv.ArgsOrEmpty()),
					},
				})
				results = append(results, schema.ToolMessage(inv.ResultText(), inv.ToolCallID))
			}
			text := m.Text()
			if text == "" && len(calls) == 0 {
				continue
			}
			out = append(out, schema.AssistantMessage(text, calls))
			out = append(out, results...)
		case transcript.RoleTool:
			for _, inv := range m.Invocations() {
				if inv.Resolved() {
					out = append(out, schema.ToolMessage(inv.ResultText(), inv.ToolCallID))
				}
			}
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
