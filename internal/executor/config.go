package executor

import (
	"time"

	"github.com/riftworks/taskqueue/internal/models"
)

// Config bounds handler dispatch.
type Config struct {
	// DefaultTimeoutSeconds applies when a task record carries no
	// timeout of its own.
	DefaultTimeoutSeconds int

	// MaxTimeoutSeconds caps the per-attempt bound regardless of what
	// the task record asks for.
	MaxTimeoutSeconds int

	// CancellationGrace is how long Execute waits for a cancelled
	// handler to return before abandoning it. A handler that ignores
	// its context past this point leaks its goroutine; the worker is
	// never blocked beyond timeout + grace.
	CancellationGrace time.Duration

	// MaxErrorMessageLength truncates stored handler failure messages.
	MaxErrorMessageLength int
}

// DefaultConfig returns the dispatch bounds used when none are
// configured explicitly.
func DefaultConfig() Config {
	return Config{
		DefaultTimeoutSeconds: models.DefaultTimeout,
		MaxTimeoutSeconds:     models.MaxTimeoutSeconds,
		CancellationGrace:     5 * time.Second,
		MaxErrorMessageLength: 2048,
	}
}

// AttemptTimeout resolves the effective per-attempt bound for task.
func (c Config) AttemptTimeout(task *models.Task) time.Duration {
	seconds := task.Timeout
	if seconds <= 0 {
		seconds = c.DefaultTimeoutSeconds
	}
	if c.MaxTimeoutSeconds > 0 && seconds > c.MaxTimeoutSeconds {
		seconds = c.MaxTimeoutSeconds
	}
	return time.Duration(seconds) * time.Second
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.DefaultTimeoutSeconds <= 0 {
		return ErrInvalidConfig
	}
	if c.MaxTimeoutSeconds > 0 && c.MaxTimeoutSeconds < c.DefaultTimeoutSeconds {
		return ErrInvalidConfig
	}
	if c.CancellationGrace < 0 {
		return ErrInvalidConfig
	}
	if c.MaxErrorMessageLength <= 0 {
		return ErrInvalidConfig
	}
	return nil
}
