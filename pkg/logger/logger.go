// Package logger wraps log/slog with the conventions the engine's
// processes share: level/format selection from configuration, gin
// middleware for the submission surface, and field helpers for the
// identifiers that matter when tracing a task through the queue.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger is a slog.Logger with engine-specific helpers.
type Logger struct {
	*slog.Logger
}

// New builds a logger writing to stdout.
func New(level, format string) *Logger {
	return NewWithWriter(level, format, os.Stdout)
}

// NewWithWriter builds a logger writing to the given writer; tests
// pass a buffer.
func NewWithWriter(level, format string, writer io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(writer, opts)
	} else {
		handler = slog.NewJSONHandler(writer, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// parseLevel maps the configuration surface's level names (including
// the worker pool's WARNING spelling) onto slog levels.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent tags every record with the emitting subsystem
// (api, worker, scheduler, migrate).
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With("component", component)}
}

// WithTaskID tags records with the task being worked on.
func (l *Logger) WithTaskID(taskID string) *Logger {
	return &Logger{Logger: l.Logger.With("task_id", taskID)}
}

// WithQueue tags records with the queue being served.
func (l *Logger) WithQueue(queue string) *Logger {
	return &Logger{Logger: l.Logger.With("queue", queue)}
}

// WithWorkerID tags records with the claiming worker's identity.
func (l *Logger) WithWorkerID(workerID string) *Logger {
	return &Logger{Logger: l.Logger.With("worker_id", workerID)}
}

// GinLogger logs one line per request with method, path, status,
// duration, and the request's correlation ID.
func (l *Logger) GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(started).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if requestID := c.GetString("request_id"); requestID != "" {
			attrs = append(attrs, "request_id", requestID)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		switch {
		case c.Writer.Status() >= 500:
			l.Error("request", attrs...)
		case c.Writer.Status() >= 400:
			l.Warn("request", attrs...)
		default:
			l.Info("request", attrs...)
		}
	}
}

// GinRecovery converts handler panics into 500 responses with a
// logged stack reference instead of a dead connection.
func (l *Logger) GinRecovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				l.Error("handler panicked",
					"panic", r,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
					"request_id", c.GetString("request_id"))
				c.AbortWithStatusJSON(500, gin.H{"error": "Internal Server Error"})
			}
		}()
		c.Next()
	}
}
