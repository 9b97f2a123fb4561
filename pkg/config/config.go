package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// DBConfig describes the target database the REPL talks to. The server never
// builds one: hosted turns carry their own connection string.
type DBConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// NewDBConfigFromURI parses a PostgreSQL URI and returns a DBConfig
func NewDBConfigFromURI(uri string) (*DBConfig, error) {
	if !strings.HasPrefix(uri, "postgresql://") && !strings.HasPrefix(uri, "postgres://") {
		return nil, fmt.Errorf("invalid PostgreSQL URI: must start with postgresql:// or postgres://")
	}

	parsedURL, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL URI: %w", err)
	}

	cfg := &DBConfig{
		Host:     parsedURL.Hostname(),
		Database: strings.TrimPrefix(parsedURL.Path, "/"),
		Port:     5432,
		SSLMode:  parsedURL.Query().Get("sslmode"),
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "prefer"
	}

	if p := parsedURL.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid port in URI: %w", err)
		}
		cfg.Port = port
	}

	if parsedURL.User != nil {
		cfg.User = parsedURL.User.Username()
		cfg.Password, _ = parsedURL.User.Password()
	}

	return cfg, nil
}

// NewDBConfigFromFlags creates a DBConfig from CLI flags, falling back to the
// standard libpq environment variables
func NewDBConfigFromFlags(host, user, password, database string, port int) *DBConfig {
	cfg := &DBConfig{
		Host:     getStringWithFallback(host, "PGHOST", "localhost"),
		Port:     getIntWithFallback(port, "PGPORT", 5432),
		Database: getStringWithFallback(database, "PGDATABASE", ""),
		User:     getStringWithFallback(user, "PGUSER", os.Getenv("USER")),
		Password: getStringWithFallback(password, "PGPASSWORD", ""),
		SSLMode:  getStringWithFallback("", "PGSSLMODE", "prefer"),
	}
	return cfg
}

// URI renders the configuration as a postgres:// connection string, the same
// form hosted turns send in the x-connection-string header
func (c *DBConfig) URI() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{c.SSLMode}}.Encode()
	}
	return u.String()
}

// MaskedURI is URI with the password replaced, suitable for logs and banners
func (c *DBConfig) MaskedURI() string {
	masked := *c
	if masked.Password != "" {
		masked.Password = "xxxxx"
	}
	return masked.URI()
}

// Validate checks if the configuration has required fields
func (c *DBConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database name is required")
	}
	return nil
}

// MaskConnectionString hides the password of an arbitrary connection string.
// Strings that do not parse as URIs are fully hidden.
func MaskConnectionString(connString string) string {
	if connString == "" {
		return ""
	}
	u, err := url.Parse(connString)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "[REDACTED]"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// getStringWithFallback returns the flag value, or env var, or default
func getStringWithFallback(flag, envVar, defaultValue string) string {
	if flag != "" {
		return flag
	}
	if envValue := os.Getenv(envVar); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getIntWithFallback returns the flag value, or env var, or default
func getIntWithFallback(flag int, envVar string, defaultValue int) int {
	if flag != 0 {
		return flag
	}
	if envValue := os.Getenv(envVar); envValue != "" {
		if parsed, err := strconv.Atoi(envValue); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getBoolWithFallback(flag bool, envVar string) bool {
	if flag {
		return true
	}
	parsed, err := strconv.ParseBool(os.Getenv(envVar))
	return err == nil && parsed
}
