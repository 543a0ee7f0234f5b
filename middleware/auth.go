package middleware

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mcsh-server/apperr"
	"mcsh-server/auth"
	"mcsh-server/models"
)

const requestIDHeader = "X-Request-ID"

// Identity resolves the bearer token into the request's caller. A missing
// or unusable token leaves the request anonymous; authorization decides
// later what an anonymous caller may do.
func Identity(tokens *auth.TokenManager, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			log.Debug("ignoring malformed authorization header", zap.String("path", c.Request.URL.Path))
			c.Next()
			return
		}
		caller, err := tokens.Parse(strings.TrimSpace(parts[1]))
		if err != nil {
			reason := "invalid"
			if errors.Is(err, auth.ErrTokenExpired) {
				reason = "expired"
			}
			log.Debug("ignoring bearer token", zap.String("reason", reason), zap.Error(err))
			c.Next()
			return
		}
		c.Request = c.Request.WithContext(auth.WithCaller(c.Request.Context(), caller))
		c.Next()
	}
}

// RequireRole rejects anonymous callers with 401 and callers outside roles
// with 403.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := auth.CallerFrom(c.Request.Context())
		if caller.Anonymous() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(apperr.Unauthenticated()))
			return
		}
		if !slices.Contains(roles, caller.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, errorBody(apperr.Denied("Insufficient permissions")))
			return
		}
		c.Next()
	}
}

func errorBody(e *apperr.Error) gin.H {
	return gin.H{"code": e.Code, "message": e.Message}
}

// Logger logs one line per request and tags it with a request id.
func Logger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		t := time.Now()
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Next()

		caller := auth.CallerFrom(c.Request.Context())
		fields := []zap.Field{
			zap.String("request_id", id),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(t)),
			zap.Int64("caller_id", caller.ID),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Error("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}
