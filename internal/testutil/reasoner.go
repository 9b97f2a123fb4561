package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/AliciaSchep/pgchat/pkg/llm"
)

// ScriptedReasoner replays a fixed sequence of steps and records every request
type ScriptedReasoner struct {
	Steps []llm.Step
	// Repeat keeps returning the last step once the script runs out
	Repeat bool
	// Err, when set, is returned instead of the step at index FailAt
	Err    error
	FailAt int

	mu       sync.Mutex
	requests []llm.Request
}

var _ llm.Reasoner = (*ScriptedReasoner)(nil)

func (s *ScriptedReasoner) Step(ctx context.Context, req llm.Request) (*llm.Step, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := len(s.requests)
	s.requests = append(s.requests, req)

	if s.Err != nil && i == s.FailAt {
		return nil, s.Err
	}
	if i >= len(s.Steps) {
		if !s.Repeat || len(s.Steps) == 0 {
			return nil, fmt.Errorf("scripted reasoner exhausted after %d steps", len(s.Steps))
		}
		i = len(s.Steps) - 1
	}
	step := s.Steps[i]
	return &step, nil
}

// Requests returns the requests seen so far
func (s *ScriptedReasoner) Requests() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Request(nil), s.requests...)
}

// ToolStep builds a step that requests the given tool calls
func ToolStep(text string, calls ...llm.Call) llm.Step {
	return llm.Step{Text: text, Calls: calls}
}

// Call builds a tool call with JSON-encoded arguments
func Call(id, name string, args any) llm.Call {
	raw, err := json.Marshal(args)
	if err != nil || args == nil {
		raw = []byte("{}")
	}
	return llm.Call{ID: id, Name: name, Args: raw}
}

// AnswerStep builds a final step with text and no calls
func AnswerStep(text string) llm.Step {
	return llm.Step{Text: text}
}
