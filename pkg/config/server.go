package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultAddr         = ":5005"
	DefaultStorePath    = "pgchat.db"
	DefaultMaxSteps     = 22
	DefaultTurnTimeout  = 30 * time.Second
	DefaultStreamDelay  = 20 * time.Millisecond
	DefaultQueryTimeout = 15 * time.Second
)

// ServerConfig holds everything needed to run the orchestration loop behind
// either front end
type ServerConfig struct {
	Addr string
	// StoreDSN selects the chat store: a postgres:// URI uses Postgres,
	// anything else is treated as a SQLite path (":memory:" included).
	StoreDSN string

	Model           string
	AnthropicAPIKey string
	OpenAIAPIKey    string

	// Endpoint overrides; empty means the provider's public API
	AnthropicBaseURL string
	OpenAIBaseURL    string

	MaxSteps     int
	TurnTimeout  time.Duration
	QueryTimeout time.Duration
	StreamDelay  time.Duration

	// CLIMode accepts model and API keys per request instead of from the
	// environment, and treats every caller as the local user.
	CLIMode bool
	LogMode string
}

// ServerFlags carries raw flag values; zero values fall back to the environment
type ServerFlags struct {
	Addr        string
	StoreDSN    string
	Model       string
	MaxSteps    int
	TurnTimeout time.Duration
	CLIMode     bool
	LogMode     string
}

// LoadEnvFile loads variables from path into the process environment without
// overriding ones already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// NewServerConfig resolves flags against PGCHAT_* environment variables and defaults
func NewServerConfig(flags ServerFlags) *ServerConfig {
	cfg := &ServerConfig{
		Addr:             getStringWithFallback(flags.Addr, "PGCHAT_ADDR", DefaultAddr),
		StoreDSN:         getStringWithFallback(flags.StoreDSN, "PGCHAT_STORE", DefaultStorePath),
		Model:            getStringWithFallback(flags.Model, "PGCHAT_MODEL", ""),
		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		AnthropicBaseURL: os.Getenv("ANTHROPIC_BASE_URL"),
		OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
		MaxSteps:         getIntWithFallback(flags.MaxSteps, "PGCHAT_MAX_STEPS", DefaultMaxSteps),
		TurnTimeout:      getDurationWithFallback(flags.TurnTimeout, "PGCHAT_TURN_TIMEOUT", DefaultTurnTimeout),
		QueryTimeout:     getDurationWithFallback(0, "PGCHAT_QUERY_TIMEOUT", DefaultQueryTimeout),
		StreamDelay:      getDurationWithFallback(0, "PGCHAT_STREAM_DELAY", DefaultStreamDelay),
		CLIMode:          getBoolWithFallback(flags.CLIMode, "PGCHAT_CLI_MODE"),
		LogMode:          getStringWithFallback(flags.LogMode, "PGCHAT_LOG_MODE", "production"),
	}
	return cfg
}

// Validate checks the numeric limits
func (c *ServerConfig) Validate() error {
	if c.MaxSteps < 1 {
		return fmt.Errorf("max steps must be at least 1, got %d", c.MaxSteps)
	}
	if c.TurnTimeout <= 0 {
		return fmt.Errorf("turn timeout must be positive")
	}
	if c.StoreDSN == "" {
		return fmt.Errorf("chat store is required")
	}
	return nil
}

// APIKeyFor returns the configured key for a provider
func (c *ServerConfig) APIKeyFor(provider string) string {
	switch provider {
	case "openai":
		return c.OpenAIAPIKey
	default:
		return c.AnthropicAPIKey
	}
}

// BaseURLFor returns the endpoint override for a provider
func (c *ServerConfig) BaseURLFor(provider string) string {
	switch provider {
	case "openai":
		return c.OpenAIBaseURL
	default:
		return c.AnthropicBaseURL
	}
}

func getDurationWithFallback(flag time.Duration, envVar string, defaultValue time.Duration) time.Duration {
	if flag != 0 {
		return flag
	}
	if envValue := os.Getenv(envVar); envValue != "" {
		if parsed, err := time.ParseDuration(envValue); err == nil {
			return parsed
		}
	}
	return defaultValue
}
