package server

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/AliciaSchep/pgchat/pkg/agent"
	"github.com/AliciaSchep/pgchat/pkg/transcript"
)

const (
	eventToolCall   = "tool-call"
	eventToolResult = "tool-result"
	eventText       = "text"
	eventFinish     = "finish"
	eventError      = "error"
)

type toolCallEvent struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args"`
}

type toolResultEvent struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	IsError    bool   `json:"isError"`
}

type textEvent struct {
	Text string `json:"text"`
}

type finishEvent struct {
	Steps     int                  `json:"steps"`
	Exhausted bool                 `json:"exhausted"`
	Messages  []transcript.Message `json:"messages"`
}

type errorEvent struct {
	Message string `json:"message"`
}

// eventStream writes server-sent events to one response
type eventStream struct {
	c *gin.Context
}

func openEventStream(c *gin.Context) *eventStream {
	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(200)
	c.Writer.Flush()
	return &eventStream{c: c}
}

// send writes one event. It fails once the client has gone away.
func (s *eventStream) send(event string, data any) error {
	if err := s.c.Request.Context().Err(); err != nil {
		return err
	}
	s.c.SSEvent(event, data)
	s.c.Writer.Flush()
	return nil
}

func (s *eventStream) hooks() agent.Hooks {
	return agent.Hooks{
		OnToolCall: func(call agent.Call) {
			args := call.Args
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			_ = s.send(eventToolCall, toolCallEvent{ToolCallID: call.ID, ToolName: call.Name, Args: args})
		},
		OnToolResult: func(call agent.Call, result agent.Result) {
			_ = s.send(eventToolResult, toolResultEvent{ToolCallID: call.ID, ToolName: call.Name, IsError: result.IsError()})
		},
	}
}
