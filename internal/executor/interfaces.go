package executor

import (
	"context"
	"time"

	"github.com/riftworks/taskqueue/internal/models"
)

// Outcome is the tagged result of one handler invocation. Handler
// errors never surface as Go errors from Execute; they are folded into
// the Outcome so retry policy can operate on a uniform Ok/Err value
// instead of thrown control flow.
type Outcome struct {
	// OK is true when the handler returned normally with a
	// serializable value.
	OK bool

	// Result holds the handler's return value when OK.
	Result models.RawJSON

	// ErrorMessage holds the truncated failure message when !OK. A
	// timed-out attempt carries the fixed message "timeout".
	ErrorMessage string

	// TimedOut is true when the attempt was cut off by the task's
	// per-attempt wall-clock bound.
	TimedOut bool

	// StartedAt and CompletedAt bound the attempt's wall-clock span.
	StartedAt   time.Time
	CompletedAt time.Time

	// ExecutionTimeMs is the attempt duration in milliseconds.
	ExecutionTimeMs int
}

// TaskExecutor runs one attempt of a claimed task.
type TaskExecutor interface {
	// Execute resolves the task's handler and runs it under the task's
	// per-attempt timeout. Handler failures and timeouts are reported
	// inside the Outcome; the error return is reserved for conditions
	// the worker must route specially, such as an unresolvable task
	// name (*registry.UnknownTaskError).
	Execute(ctx context.Context, task *models.Task) (*Outcome, error)

	// IsHealthy reports whether the executor can dispatch attempts.
	IsHealthy(ctx context.Context) error
}
