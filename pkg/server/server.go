// Package server exposes the chat agent and its supporting actions over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AliciaSchep/pgchat/internal/logger"
	"github.com/AliciaSchep/pgchat/pkg/agent"
	"github.com/AliciaSchep/pgchat/pkg/chat"
	"github.com/AliciaSchep/pgchat/pkg/config"
	"github.com/AliciaSchep/pgchat/pkg/llm"
)

const shutdownTimeout = 10 * time.Second

// ReasonerFactory builds the reasoning engine for one turn
type ReasonerFactory func(ctx context.Context, opts llm.Options) (llm.Reasoner, error)

// KeyCheckFunc verifies an API key against its provider
type KeyCheckFunc func(ctx context.Context, provider, apiKey string) error

// Deps are the collaborators a Server needs. Only Config and Chats are
// required.
type Deps struct {
	Config      *config.ServerConfig
	Chats       *chat.Service
	Tools       *agent.Toolset
	NewReasoner ReasonerFactory
	CheckKey    KeyCheckFunc
	Log         *logger.Logger
}

// Server routes HTTP requests to the orchestrator and the chat store
type Server struct {
	cfg         *config.ServerConfig
	chats       *chat.Service
	tools       *agent.Toolset
	newReasoner ReasonerFactory
	checkKey    KeyCheckFunc
	log         *logger.Logger
	engine      *gin.Engine

	// saves tracks chat writes still running after their response finished
	saves sync.WaitGroup
}

// New builds a server and registers its routes
func New(deps Deps) *Server {
	s := &Server{
		cfg:         deps.Config,
		chats:       deps.Chats,
		tools:       deps.Tools,
		newReasoner: deps.NewReasoner,
		checkKey:    deps.CheckKey,
		log:         deps.Log,
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.tools == nil {
		s.tools = agent.NewToolset(s.log)
		s.tools.QueryTimeout = s.cfg.QueryTimeout
	}
	if s.newReasoner == nil {
		s.newReasoner = llm.New
	}
	if s.checkKey == nil {
		s.checkKey = s.checkProviderKey
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), requestLogger(s.log))
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.healthz)

	api := s.engine.Group("/api")
	api.Use(s.identity())
	api.POST("/chat", s.postChat)
	api.GET("/chats", s.listChats)
	api.GET("/chats/:id", s.getChat)
	api.POST("/chats/rename", s.renameChat)
	api.POST("/sql", s.runSQL)
	api.POST("/connections/validate", s.validateConnection)
	api.POST("/keys/validate", s.validateKey)
}

// Handler returns the HTTP handler serving every route
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Wait blocks until background chat writes have finished
func (s *Server) Wait() {
	s.saves.Wait()
}

// Run serves on the configured address until ctx is cancelled, then drains
// in-flight requests and pending chat writes
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", "addr", s.cfg.Addr, "cli_mode", s.cfg.CLIMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.Wait()
	return nil
}

// checkProviderKey builds a reasoner for the key and asks the provider to
// accept it
func (s *Server) checkProviderKey(ctx context.Context, provider, apiKey string) error {
	reasoner, err := llm.New(ctx, llm.Options{Provider: provider, APIKey: apiKey, BaseURL: s.cfg.BaseURLFor(provider)})
	if err != nil {
		return err
	}
	checker, ok := reasoner.(llm.KeyChecker)
	if !ok {
		return fmt.Errorf("key validation is not supported for provider %s", provider)
	}
	return checker.CheckKey(ctx)
}
