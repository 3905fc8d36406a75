package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/sandbox"
)

const sessionKey = "session"

// AuthMiddleware creates middleware that validates access tokens
func AuthMiddleware(auth *sandbox.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"messageCode": "INVALID_TOKEN", "reason": "invalid authorization header"})
			return
		}

		session, err := auth.ValidateAccessToken(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, core.ErrTokenExpired) && !errors.Is(err, core.ErrTokenInvalidated) {
				err = core.ErrInvalidToken
			}
			abortWithError(c, err)
			return
		}

		c.Set(sessionKey, session)
		c.Next()
	}
}

func currentSession(c *gin.Context) *core.Session {
	v, _ := c.Get(sessionKey)
	s, _ := v.(*core.Session)
	return s
}

// RequestLogger logs one line per request
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("Request served",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("took", time.Since(start)))
	}
}
