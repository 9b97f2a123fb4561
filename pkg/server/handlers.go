package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"

	"github.com/AliciaSchep/pgchat/pkg/agent"
	"github.com/AliciaSchep/pgchat/pkg/chat"
	"github.com/AliciaSchep/pgchat/pkg/config"
	"github.com/AliciaSchep/pgchat/pkg/db"
	"github.com/AliciaSchep/pgchat/pkg/llm"
	"github.com/AliciaSchep/pgchat/pkg/transcript"
)

type chatRequest struct {
	ID       string               `json:"id"`
	Messages []transcript.Message `json:"messages"`
}

type chatSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// renameForm is the raw body; renameRequest carries the rules checked after
// the name is trimmed
type renameForm struct {
	ID   string `form:"id" json:"id"`
	Name string `form:"name" json:"name"`
}

type renameRequest struct {
	ID   string `binding:"required,uuid"`
	Name string `binding:"required,max=100"`
}

var renameMessages = map[string]string{
	"required": "Missing id or name",
	"Name.max": "Name must be less than 100 characters",
	"ID.uuid":  "Invalid id",
}

type sqlRequest struct {
	Query string `json:"query" binding:"required"`
}

type connectionRequest struct {
	ConnectionString string `json:"connectionString" binding:"required"`
}

type keyRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"apiKey" binding:"required"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func (s *Server) healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// postChat runs one turn and streams it back as server-sent events
func (s *Server) postChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest("Invalid request body"))
		return
	}
	if req.ID == "" {
		respondError(c, badRequest("No id provided"))
		return
	}
	if _, err := uuid.Parse(req.ID); err != nil {
		respondError(c, badRequest("Invalid id"))
		return
	}

	owner := userID(c)
	if _, err := s.chats.Authorize(c.Request.Context(), owner, req.ID); err != nil {
		if errors.Is(err, chat.ErrForbidden) {
			respondError(c, unauthorized())
			return
		}
		respondError(c, internal("Error fetching chat", err))
		return
	}

	connString := c.GetHeader(headerConnection)
	if connString == "" {
		respondError(c, badRequest("No connection string provided"))
		return
	}

	opts, apiErr := s.reasonerOptions(c)
	if apiErr != nil {
		respondError(c, apiErr)
		return
	}

	n := len(req.Messages)
	if n == 0 {
		respondError(c, badRequest("No messages provided"))
		return
	}
	if req.Messages[n-1].Role != transcript.RoleUser {
		respondError(c, badRequest("Last message must be from the user"))
		return
	}
	if err := transcript.Validate(req.Messages); err != nil {
		respondError(c, badRequest("Invalid messages: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.turnTimeout())
	defer cancel()

	reasoner, err := s.newReasoner(ctx, opts)
	if err != nil {
		respondError(c, internal("Error creating model", err))
		return
	}

	orchestrator := agent.NewOrchestrator(reasoner, s.tools, s.log)
	orchestrator.MaxSteps = s.cfg.MaxSteps

	log := s.log.With("chat_id", req.ID, "user_id", owner)
	stream := openEventStream(c)
	outcome, err := orchestrator.Run(ctx, agent.Turn{History: req.Messages, ConnString: connString}, stream.hooks())
	if err != nil {
		log.Warn("turn failed", "error", err, "steps", outcome.Steps)
		_ = stream.send(eventError, errorEvent{Message: turnErrorMessage(err)})
		return
	}

	saveCtx := context.WithoutCancel(c.Request.Context())
	s.saves.Add(1)
	go func() {
		defer s.saves.Done()
		if _, err := s.chats.Save(saveCtx, owner, req.ID, req.Messages, outcome.Messages); err != nil {
			log.Warn("failed to save chat", "error", err)
		}
	}()

	err = agent.StreamLines(ctx, outcome.Answer, s.cfg.StreamDelay, func(chunk string) error {
		return stream.send(eventText, textEvent{Text: chunk})
	})
	if err != nil {
		log.Debug("answer stream interrupted", "error", err)
		return
	}
	_ = stream.send(eventFinish, finishEvent{Steps: outcome.Steps, Exhausted: outcome.Exhausted, Messages: outcome.Messages})
}

// reasonerOptions picks the model and key: from headers in CLI mode, from
// the server configuration otherwise
func (s *Server) reasonerOptions(c *gin.Context) (llm.Options, *apiError) {
	if !s.cfg.CLIMode {
		provider := llm.ProviderForModel(s.cfg.Model)
		return llm.Options{
			Provider: provider,
			Model:    s.cfg.Model,
			APIKey:   s.cfg.APIKeyFor(provider),
			BaseURL:  s.cfg.BaseURLFor(provider),
		}, nil
	}

	model := c.GetHeader(headerModel)
	if model == "" {
		return llm.Options{}, badRequest("No model provided")
	}
	provider := llm.ProviderForModel(model)
	keyHeader := headerClaudeKey
	if provider == llm.ProviderOpenAI {
		keyHeader = headerOpenAIKey
	}
	apiKey := c.GetHeader(keyHeader)
	if apiKey == "" {
		return llm.Options{}, badRequest("No API key provided in %s", keyHeader)
	}
	return llm.Options{Provider: provider, Model: model, APIKey: apiKey, BaseURL: s.cfg.BaseURLFor(provider)}, nil
}

func turnErrorMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "The request timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "The request was cancelled"
	}
	return "Error getting response from the model"
}

func (s *Server) listChats(c *gin.Context) {
	chats, err := s.chats.List(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, internal("Error listing chats", err))
		return
	}
	out := make([]chatSummary, 0, len(chats))
	for _, ch := range chats {
		out = append(out, chatSummary{ID: ch.ID, Name: ch.Name, CreatedAt: ch.CreatedAt})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getChat(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		respondError(c, badRequest("Invalid id"))
		return
	}
	ch, err := s.chats.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		respondError(c, chatError(err))
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (s *Server) renameChat(c *gin.Context) {
	var form renameForm
	if err := c.ShouldBind(&form); err != nil {
		respondError(c, badRequest("Invalid request body"))
		return
	}
	req := renameRequest{ID: form.ID, Name: strings.TrimSpace(form.Name)}
	if err := binding.Validator.ValidateStruct(&req); err != nil {
		respondError(c, badRequest("%s", validationMessage(err, renameMessages)))
		return
	}
	ch, err := s.chats.Rename(c.Request.Context(), userID(c), req.ID, req.Name)
	if err != nil {
		respondError(c, chatError(err))
		return
	}
	c.JSON(http.StatusOK, chatSummary{ID: ch.ID, Name: ch.Name, CreatedAt: ch.CreatedAt})
}

func chatError(err error) error {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		return notFound("Chat not found")
	case errors.Is(err, chat.ErrForbidden):
		return unauthorized()
	case errors.Is(err, chat.ErrNameTooLong):
		return badRequest("Name must be less than 100 characters")
	case errors.Is(err, chat.ErrInvalidName):
		return badRequest("Missing id or name")
	default:
		return internal("Error fetching chat", err)
	}
}

// runSQL backs the run button: the guarded executor, errors reported in the body
func (s *Server) runSQL(c *gin.Context) {
	var req sqlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest("No query provided"))
		return
	}
	connString := c.GetHeader(headerConnection)
	if connString == "" {
		respondError(c, badRequest("No connection string provided"))
		return
	}

	result := s.tools.RunSQL(c.Request.Context(), connString, req.Query)
	if result.IsError() {
		c.JSON(http.StatusOK, gin.H{"error": result.Error})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": json.RawMessage(result.Value)})
}

func (s *Server) validateConnection(c *gin.Context) {
	var req connectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest("No connection string provided"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.queryTimeout())
	defer cancel()

	dialer := s.tools.Dialer
	if dialer == nil {
		dialer = db.PgxDialer{}
	}
	if err := db.Ping(ctx, dialer, req.ConnectionString); err != nil {
		c.JSON(http.StatusOK, statusResponse{Status: err.Error()})
		return
	}
	c.JSON(http.StatusOK, statusResponse{Status: "Valid connection"})
}

func (s *Server) validateKey(c *gin.Context) {
	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest("No API key provided"))
		return
	}
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		provider = llm.ProviderAnthropic
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.queryTimeout())
	defer cancel()

	if err := s.checkKey(ctx, provider, req.APIKey); err != nil {
		s.log.Info("API key rejected", "provider", provider, "error", err)
		c.JSON(http.StatusOK, statusResponse{Status: "Invalid API key"})
		return
	}
	c.JSON(http.StatusOK, statusResponse{Status: "Valid API key"})
}

func (s *Server) turnTimeout() time.Duration {
	if s.cfg.TurnTimeout > 0 {
		return s.cfg.TurnTimeout
	}
	return config.DefaultTurnTimeout
}

func (s *Server) queryTimeout() time.Duration {
	if s.cfg.QueryTimeout > 0 {
		return s.cfg.QueryTimeout
	}
	return agent.DefaultQueryTimeout
}
