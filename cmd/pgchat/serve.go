package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AliciaSchep/pgchat/internal/logger"
	"github.com/AliciaSchep/pgchat/pkg/agent"
	"github.com/AliciaSchep/pgchat/pkg/chat"
	"github.com/AliciaSchep/pgchat/pkg/config"
	"github.com/AliciaSchep/pgchat/pkg/server"
)

var serveFlags config.ServerFlags

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat API over HTTP",
	Long: `Serve the chat API. Turns stream back as server-sent events and completed
chats are saved to the chat store.

In CLI mode every caller is the local user and the model and API key come
from request headers instead of the environment.

Examples:
  pgchat serve
  pgchat serve --addr :8080 --store postgres://app@localhost/pgchat
  pgchat serve --cli-mode --store ./chats.db`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.Addr, "addr", "", "Listen address (default: "+config.DefaultAddr+", or PGCHAT_ADDR)")
	f.StringVar(&serveFlags.StoreDSN, "store", "", "Chat store: SQLite path or postgres:// URI (default: "+config.DefaultStorePath+", or PGCHAT_STORE)")
	f.StringVar(&serveFlags.Model, "model", "", "Model to use outside CLI mode (or PGCHAT_MODEL)")
	f.IntVar(&serveFlags.MaxSteps, "max-steps", 0, fmt.Sprintf("Model calls allowed per turn (default: %d, or PGCHAT_MAX_STEPS)", config.DefaultMaxSteps))
	f.DurationVar(&serveFlags.TurnTimeout, "turn-timeout", 0, fmt.Sprintf("Time limit for one turn (default: %s, or PGCHAT_TURN_TIMEOUT)", config.DefaultTurnTimeout))
	f.BoolVar(&serveFlags.CLIMode, "cli-mode", false, "Take model and API keys from request headers (or PGCHAT_CLI_MODE)")
	f.StringVar(&serveFlags.LogMode, "log-mode", "", "Log mode: production or development (or PGCHAT_LOG_MODE)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}
	cfg := config.NewServerConfig(serveFlags)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()

	openCtx, cancelOpen := context.WithTimeout(ctx, 10*time.Second)
	chatStore, err := openStore(openCtx, cfg.StoreDSN)
	cancelOpen()
	if err != nil {
		return err
	}
	defer chatStore.Close()

	if !cfg.CLIMode {
		if _, ok := reasonerOptions(cfg); !ok {
			log.Warn("no API key configured for the default model; turns will fail until one is set")
		}
	}

	tools := agent.NewToolset(log)
	tools.QueryTimeout = cfg.QueryTimeout

	srv := server.New(server.Deps{
		Config: cfg,
		Chats:  chat.NewService(chatStore, log),
		Tools:  tools,
		Log:    log,
	})
	return srv.Run(ctx)
}
