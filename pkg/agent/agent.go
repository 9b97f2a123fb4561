package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AliciaSchep/pgchat/internal/logger"
	"github.com/AliciaSchep/pgchat/pkg/llm"
	"github.com/AliciaSchep/pgchat/pkg/transcript"
)

const (
	// DefaultMaxSteps bounds the number of model calls in one turn
	DefaultMaxSteps = 22
	// DefaultMaxParallel bounds concurrent tool calls within one step
	DefaultMaxParallel = 4

	emptyAnswer = "I wasn't able to produce an answer for that. Could you rephrase the question?"
)

var (
	ErrNoConnection  = errors.New("no connection string provided")
	ErrNoUserMessage = errors.New("last message must be a user message")
)

// Orchestrator runs the bounded reason/act loop for one turn at a time. It
// holds no per-turn state and is safe for concurrent use.
type Orchestrator struct {
	Reasoner    llm.Reasoner
	Tools       *Toolset
	Registry    *ToolRegistry
	System      string
	MaxSteps    int
	MaxParallel int
	Log         *logger.Logger

	now   func() time.Time
	newID func() string
}

// NewOrchestrator builds an orchestrator exposing every tool with the default prompt and budget
func NewOrchestrator(reasoner llm.Reasoner, tools *Toolset, log *logger.Logger) *Orchestrator {
	registry := NewToolRegistry()
	return &Orchestrator{
		Reasoner:    reasoner,
		Tools:       tools,
		Registry:    registry,
		System:      SystemPrompt(registry),
		MaxSteps:    DefaultMaxSteps,
		MaxParallel: DefaultMaxParallel,
		Log:         log,
	}
}

// ExhaustedAnswer is the final answer used when the step budget runs out
// before the model produced any text
func ExhaustedAnswer(maxSteps int) string {
	return fmt.Sprintf("I reached the limit of %d steps before finishing. Try narrowing the question or asking about a specific table.", maxSteps)
}

// Run drives one turn to completion. On failure the returned outcome carries
// StateFailed and nothing should be persisted.
func (o *Orchestrator) Run(ctx context.Context, turn Turn, hooks Hooks) (*Outcome, error) {
	log := o.logger()
	out := &Outcome{State: StateIdle}

	if err := o.checkTurn(turn); err != nil {
		out.State = StateFailed
		return out, err
	}

	maxSteps := o.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	registry := o.registry()
	req := llm.Request{
		System:   o.System,
		Messages: append([]transcript.Message(nil), turn.History...),
		Tools:    registry.Specs(),
	}

	var lastText string
	for out.Steps < maxSteps {
		if err := ctx.Err(); err != nil {
			out.State = StateFailed
			return out, fmt.Errorf("turn cancelled after %d steps: %w", out.Steps, err)
		}

		out.State = StateAwaitingModelStep
		step, err := o.Reasoner.Step(ctx, req)
		out.Steps++
		if err != nil {
			out.State = StateFailed
			return out, fmt.Errorf("reasoning step %d failed: %w", out.Steps, err)
		}
		log.Debug("model step", "step", out.Steps, "calls", len(step.Calls), "text_len", len(step.Text))

		if len(step.Calls) == 0 {
			out.State = StateFinalizing
			o.finalize(out, step.Reasoning, step.Text)
			return out, nil
		}
		if step.Text != "" {
			lastText = step.Text
		}

		out.State = StateToolDispatch
		msg := o.dispatch(ctx, turn.ConnString, registry, out.Steps, step, hooks)
		out.Messages = append(out.Messages, msg)
		req.Messages = append(req.Messages, msg)
	}

	log.Info("step budget exhausted", "max_steps", maxSteps)
	out.State = StateFinalizing
	out.Exhausted = true
	if lastText == "" {
		lastText = ExhaustedAnswer(maxSteps)
	}
	o.finalize(out, "", lastText)
	return out, nil
}

func (o *Orchestrator) checkTurn(turn Turn) error {
	if turn.ConnString == "" {
		return ErrNoConnection
	}
	n := len(turn.History)
	if n == 0 || turn.History[n-1].Role != transcript.RoleUser {
		return ErrNoUserMessage
	}
	return transcript.Validate(turn.History)
}

// dispatch resolves every call of a step concurrently and folds the results
// back in emission order as a single assistant message
func (o *Orchestrator) dispatch(ctx context.Context, connString string, registry *ToolRegistry, stepNum int, step *llm.Step, hooks Hooks) transcript.Message {
	calls := make([]Call, len(step.Calls))
	for i, c := range step.Calls {
		kind, _ := ParseToolKind(c.Name)
		id := c.ID
		if id == "" {
			id = o.id()
		}
		calls[i] = Call{ID: id, Kind: kind, Name: c.Name, Args: c.Args}
		hooks.toolCall(calls[i])
	}

	results := make([]Result, len(calls))
	g := new(errgroup.Group)
	limit := o.MaxParallel
	if limit <= 0 {
		limit = DefaultMaxParallel
	}
	g.SetLimit(limit)
	for i, call := range calls {
		if call.Kind != 0 && !registry.Enabled(call.Kind) {
			results[i] = errorResult("Tool '%s' is not available in this session", call.Name)
			continue
		}
		g.Go(func() error {
			results[i] = o.toolset().Dispatch(ctx, connString, call)
			return nil
		})
	}
	_ = g.Wait()

	parts := make([]transcript.Part, 0, len(calls)+2)
	if step.Reasoning != "" {
		parts = append(parts, transcript.ReasoningPart(step.Reasoning))
	}
	if step.Text != "" {
		parts = append(parts, transcript.TextPart(step.Text))
	}
	for i, call := range calls {
		hooks.toolResult(call, results[i])
		parts = append(parts, transcript.ToolPart(transcript.ToolInvocation{
			State:      transcript.StateResult,
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Args:       argsOrEmpty(call),
			Result:     results[i].JSON(),
			IsError:    results[i].IsError(),
			Step:       stepNum,
		}))
	}

	return o.message(step.Text, parts)
}

func (o *Orchestrator) finalize(out *Outcome, reasoning, text string) {
	if text == "" {
		text = emptyAnswer
	}
	parts := make([]transcript.Part, 0, 2)
	if reasoning != "" {
		parts = append(parts, transcript.ReasoningPart(reasoning))
	}
	parts = append(parts, transcript.TextPart(text))

	out.Messages = append(out.Messages, o.message(text, parts))
	out.Answer = text
	out.State = StateDone
}

func (o *Orchestrator) message(content string, parts []transcript.Part) transcript.Message {
	now := o.clock()
	return transcript.Message{
		ID:        o.id(),
		Role:      transcript.RoleAssistant,
		Content:   content,
		Parts:     parts,
		CreatedAt: &now,
	}
}

func argsOrEmpty(call Call) []byte {
	inv := transcript.ToolInvocation{Args: call.Args}
	return inv.ArgsOrEmpty()
}

func (o *Orchestrator) registry() *ToolRegistry {
	if o.Registry == nil {
		return NewToolRegistry()
	}
	return o.Registry
}

func (o *Orchestrator) toolset() *Toolset {
	if o.Tools == nil {
		return NewToolset(o.logger())
	}
	return o.Tools
}

func (o *Orchestrator) logger() *logger.Logger {
	if o.Log == nil {
		return logger.Nop()
	}
	return o.Log
}

func (o *Orchestrator) clock() time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Now().UTC()
}

func (o *Orchestrator) id() string {
	if o.newID != nil {
		return o.newID()
	}
	return uuid.NewString()
}
