package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AliciaSchep/pgchat/internal/logger"
)

const (
	headerUserID     = "X-User-ID"
	headerConnection = "x-connection-string"
	headerModel      = "x-model"
	headerOpenAIKey  = "x-openai-api-key"
	headerClaudeKey  = "x-anthropic-api-key"

	// localUser is the identity of every caller in CLI mode
	localUser = "local"

	ctxUserID = "userID"
)

var errUnauthorized = errors.New("Unauthorized")

// identity resolves the caller from the header set by the auth proxy
func (s *Server) identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(headerUserID))
		if userID == "" && s.cfg.CLIMode {
			userID = localUser
		}
		if userID == "" {
			respondError(c, &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Err: errUnauthorized})
			c.Abort()
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

func userID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if id := userID(c); id != "" {
			fields = append(fields, "user_id", id)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}
