package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lattice-run/crawlhive/internal/logger"
)

type loggerContextKey struct{}

// RequestIDLoggerMiddleware stamps every request with a random id and
// stashes a request-scoped logger in both the gin context and the Go
// context, the way the crawler's gin middleware does it.
func RequestIDLoggerMiddleware(log logger.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := generateRequestID()
		scoped := log.With(logger.String("request_id", requestID))

		c.Set("request_id", requestID)
		c.Set("logger", scoped)
		c.Request = c.Request.WithContext(contextWithLogger(c.Request.Context(), scoped))
		c.Writer.Header().Set("X-Request-Id", requestID)
		c.Next()
	}
}

func contextWithLogger(ctx context.Context, log logger.Interface) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, log)
}

// LoggerFromContext returns the request-scoped logger stored by
// RequestIDLoggerMiddleware, falling back to fallback if none is present.
func LoggerFromContext(ctx context.Context, fallback logger.Interface) logger.Interface {
	if log, ok := ctx.Value(loggerContextKey{}).(logger.Interface); ok {
		return log
	}
	return fallback
}

func generateRequestID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

// LoggerMiddleware emits one structured log line per request after it
// completes, picking up the request id set by RequestIDLoggerMiddleware.
func LoggerMiddleware(log logger.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("duration", time.Since(start)),
			logger.String("client_ip", c.ClientIP()),
		}
		if query != "" {
			fields = append(fields, logger.String("query", query))
		}
		if requestID, ok := c.Get("request_id"); ok {
			fields = append(fields, logger.String("request_id", fmt.Sprint(requestID)))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, logger.String("errors", c.Errors.String()))
		}
		log.Info("request", fields...)
	}
}

// RecoveryMiddleware converts a panic into a 500 JSON response instead of
// crashing the process.
func RecoveryMiddleware(log logger.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered",
					logger.Any("panic", r),
					logger.String("path", c.Request.URL.Path),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"error":   "internal server error",
				})
			}
		}()
		c.Next()
	}
}

// CORSConfig configures CORSMiddleware.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// DefaultCORSConfig mirrors the crawler's permissive defaults: allow every
// origin and the standard verb set unless the caller overrides it.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders: []string{"Origin", "Content-Type", "Content-Length", "Authorization", "X-Requested-With"},
		MaxAge:         12 * time.Hour,
	}
}

// CORSMiddleware applies cfg's allowlists and answers preflight requests.
func CORSMiddleware(cfg CORSConfig) gin.HandlerFunc {
	maxAge := strconv.Itoa(int(cfg.MaxAge.Seconds()))
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", determineAllowedOrigin(cfg.AllowedOrigins, origin))
			c.Writer.Header().Set("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", joinStrings(cfg.AllowedMethods))
		c.Writer.Header().Set("Access-Control-Allow-Headers", joinStrings(cfg.AllowedHeaders))
		if cfg.AllowCredentials {
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		c.Writer.Header().Set("Access-Control-Max-Age", maxAge)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func determineAllowedOrigin(allowed []string, origin string) string {
	for _, a := range allowed {
		if a == "*" || a == origin {
			return a
		}
	}
	return allowed[0]
}

func joinStrings(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ", "
		}
		out += item
	}
	return out
}
