package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the request id in and out.
	RequestIDHeader = "X-Request-Id"
	requestIDKey    = "request_id"
)

// New returns a JSON logger for prod and a text logger otherwise.
func New(env string) *slog.Logger {
	return NewWithWriter(env, os.Stdout)
}

// NewWithWriter is New writing to w.
func NewWithWriter(env string, w io.Writer) *slog.Logger {
	if env == "prod" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// Middleware assigns a request id (keeping an incoming X-Request-Id) and
// logs one line per request.
func Middleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			slog.String("request_id", requestID),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Int("bytes", c.Writer.Size()),
			slog.Duration("duration", time.Since(start)),
		}
		switch {
		case status >= 500:
			log.Error("request", attrs...)
		case status >= 400:
			log.Warn("request", attrs...)
		default:
			log.Info("request", attrs...)
		}
	}
}

// RequestID returns the id assigned by Middleware.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// FromGin returns log annotated with the request id.
func FromGin(log *slog.Logger, c *gin.Context) *slog.Logger {
	if id := RequestID(c); id != "" {
		return log.With(slog.String("request_id", id))
	}
	return log
}
