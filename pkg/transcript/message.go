// Package transcript models the persisted conversation: role-tagged messages
// whose parts form a closed tagged union of text, reasoning and tool invocations.
package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType is the discriminant of a message part.
type PartType string

const (
	PartText           PartType = "text"
	PartReasoning      PartType = "reasoning"
	PartToolInvocation PartType = "tool-invocation"
)

// InvocationState tracks whether a tool call has been resolved.
type InvocationState string

const (
	StateCall   InvocationState = "call"
	StateResult InvocationState = "result"
)

var (
	ErrMissingPartType = errors.New("message part is missing its type")
	ErrUnresolvedCall  = errors.New("transcript contains an unresolved tool invocation")
	errUnknownPartType = errors.New("unknown message part type")
)

// ToolInvocation is one tool call and, once resolved, its result.
type ToolInvocation struct {
	State      InvocationState `json:"state"`
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args"`
	Result     json.RawMessage `json:"result,omitempty"`
	IsError    bool            `json:"isError,omitempty"`
	Step       int             `json:"step,omitempty"`
}

// Resolved reports whether the invocation carries a result.
func (ti ToolInvocation) Resolved() bool {
	return ti.State == StateResult
}

// ResultText renders the result the way a model should read it: JSON strings
// are unquoted, anything else is returned as raw JSON.
func (ti ToolInvocation) ResultText() string {
	if len(ti.Result) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(ti.Result, &s); err == nil {
		return s
	}
	return string(ti.Result)
}

// ArgsOrEmpty returns the arguments, defaulting to an empty JSON object.
func (ti ToolInvocation) ArgsOrEmpty() json.RawMessage {
	trimmed := strings.TrimSpace(string(ti.Args))
	if trimmed == "" || trimmed == "null" {
		return json.RawMessage("{}")
	}
	return ti.Args
}

// Part is one element of a message. Exactly one payload field is meaningful,
// selected by Type.
type Part struct {
	Type           PartType        `json:"type"`
	Text           string          `json:"text,omitempty"`
	Reasoning      string          `json:"reasoning,omitempty"`
	ToolInvocation *ToolInvocation `json:"toolInvocation,omitempty"`
}

func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

func ReasoningPart(reasoning string) Part {
	return Part{Type: PartReasoning, Reasoning: reasoning}
}

func ToolPart(inv ToolInvocation) Part {
	return Part{Type: PartToolInvocation, ToolInvocation: &inv}
}

func (p *Part) UnmarshalJSON(data []byte) error {
	type wirePart Part
	var w wirePart
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case "":
		return ErrMissingPartType
	case PartText, PartReasoning:
	case PartToolInvocation:
		if w.ToolInvocation == nil {
			return fmt.Errorf("tool-invocation part without toolInvocation payload")
		}
	default:
		*p = Part{Type: w.Type}
		return errUnknownPartType
	}
	*p = Part(w)
	return nil
}

// Message is a role-tagged transcript entry.
type Message struct {
	ID        string     `json:"id,omitempty"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Parts     []Part     `json:"parts,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// UnmarshalJSON decodes a message, dropping parts whose type this package
// does not model (clients may send presentation-only parts).
func (m *Message) UnmarshalJSON(data []byte) error {
	var w struct {
		ID        string            `json:"id"`
		Role      Role              `json:"role"`
		Content   json.RawMessage   `json:"content"`
		Parts     []json.RawMessage `json:"parts"`
		CreatedAt *time.Time        `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	msg := Message{ID: w.ID, Role: w.Role, CreatedAt: w.CreatedAt}
	if len(w.Content) > 0 && string(w.Content) != "null" {
		if err := json.Unmarshal(w.Content, &msg.Content); err != nil {
			return fmt.Errorf("message content must be a string: %w", err)
		}
	}
	for _, raw := range w.Parts {
		var p Part
		err := json.Unmarshal(raw, &p)
		if errors.Is(err, errUnknownPartType) {
			continue
		}
		if err != nil {
			return err
		}
		msg.Parts = append(msg.Parts, p)
	}
	*m = msg
	return nil
}

// Text returns the text parts joined together, or Content when there are none.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	if b.Len() == 0 {
		return m.Content
	}
	return b.String()
}

// Invocations returns the tool invocations carried by the message, in order.
func (m Message) Invocations() []ToolInvocation {
	var out []ToolInvocation
	for _, p := range m.Parts {
		if p.Type == PartToolInvocation && p.ToolInvocation != nil {
			out = append(out, *p.ToolInvocation)
		}
	}
	return out
}

// Validate checks that every tool invocation in the transcript is resolved.
func Validate(messages []Message) error {
	for i, m := range messages {
		switch m.Role {
		case RoleUser, RoleAssistant, RoleTool:
		default:
			return fmt.Errorf("message %d has invalid role %q", i, m.Role)
		}
		for _, inv := range m.Invocations() {
			if !inv.Resolved() {
				return fmt.Errorf("%w: %s (%s)", ErrUnresolvedCall, inv.ToolName, inv.ToolCallID)
			}
		}
	}
	return nil
}

// Marshal serialises a transcript as a single JSON array.
func Marshal(messages []Message) ([]byte, error) {
	if messages == nil {
		messages = []Message{}
	}
	return json.Marshal(messages)
}

// Unmarshal decodes a transcript stored by Marshal.
func Unmarshal(data []byte) ([]Message, error) {
	if len(data) == 0 {
		return []Message{}, nil
	}
	var messages []Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}
	return messages, nil
}
