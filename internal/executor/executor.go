package executor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/riftworks/taskqueue/internal/models"
	"github.com/riftworks/taskqueue/internal/registry"
)

// timeoutMessage is the fixed error message stored for timed-out
// attempts.
const timeoutMessage = "timeout"

// RegistryExecutor dispatches attempts to handlers registered in a
// process-wide Registry, enforcing the task's per-attempt wall-clock
// bound. No isolation beyond the timeout is provided; handlers are
// trusted code registered at startup.
type RegistryExecutor struct {
	registry *registry.Registry
	config   Config
	logger   *slog.Logger
}

// NewRegistryExecutor creates an executor over the given registry.
func NewRegistryExecutor(reg *registry.Registry, cfg Config, logger *slog.Logger) (*RegistryExecutor, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RegistryExecutor{registry: reg, config: cfg, logger: logger}, nil
}

// handlerReturn carries one handler invocation's result across the
// goroutine boundary.
type handlerReturn struct {
	value interface{}
	err   error
}

// Execute resolves and runs the task's handler under its timeout.
// An unresolvable task name is returned as *registry.UnknownTaskError
// so the worker can route it straight to FAILED; everything else the
// handler does, including panicking, is folded into the Outcome.
func (e *RegistryExecutor) Execute(ctx context.Context, task *models.Task) (*Outcome, error) {
	if task == nil {
		return nil, fmt.Errorf("task cannot be nil")
	}

	descriptor, err := e.registry.Resolve(task.TaskName)
	if err != nil {
		return nil, err
	}

	timeout := e.config.AttemptTimeout(task)
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	startedAt := time.Now()
	done := make(chan handlerReturn, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("handler panicked",
					"task_id", task.ID, "task_name", task.TaskName,
					"panic", r, "stack", string(debug.Stack()))
				done <- handlerReturn{err: fmt.Errorf("handler panicked: %v", r)}
			}
		}()
		value, err := descriptor.Handler(attemptCtx, task.Args, task.Kwargs)
		done <- handlerReturn{value: value, err: err}
	}()

	select {
	case ret := <-done:
		return e.classify(task, startedAt, ret), nil

	case <-attemptCtx.Done():
		// The attempt context is cancelled; give the handler a bounded
		// grace to notice before abandoning its goroutine. The worker
		// is never blocked beyond timeout + grace.
		select {
		case <-done:
		case <-time.After(e.config.CancellationGrace):
			e.logger.Warn("handler ignored cancellation; abandoning attempt goroutine",
				"task_id", task.ID, "task_name", task.TaskName)
		}

		completedAt := time.Now()
		outcome := &Outcome{
			StartedAt:       startedAt,
			CompletedAt:     completedAt,
			ExecutionTimeMs: int(completedAt.Sub(startedAt).Milliseconds()),
		}
		if ctx.Err() != nil && attemptCtx.Err() != context.DeadlineExceeded {
			// Parent cancellation (shutdown), not the attempt bound.
			outcome.ErrorMessage = e.truncate(ErrExecutionCancelled.Error())
		} else {
			outcome.TimedOut = true
			outcome.ErrorMessage = timeoutMessage
		}
		return outcome, nil
	}
}

// classify converts a handler return into an Outcome.
func (e *RegistryExecutor) classify(task *models.Task, startedAt time.Time, ret handlerReturn) *Outcome {
	completedAt := time.Now()
	outcome := &Outcome{
		StartedAt:       startedAt,
		CompletedAt:     completedAt,
		ExecutionTimeMs: int(completedAt.Sub(startedAt).Milliseconds()),
	}

	if ret.err != nil {
		outcome.ErrorMessage = e.truncate(ret.err.Error())
		return outcome
	}

	result, err := models.NewRawJSON(ret.value)
	if err != nil {
		e.logger.Error("handler returned unserializable value",
			"task_id", task.ID, "task_name", task.TaskName, "error", err)
		outcome.ErrorMessage = e.truncate(fmt.Sprintf("%v: %v", ErrResultNotSerializable, err))
		return outcome
	}

	outcome.OK = true
	outcome.Result = result
	return outcome
}

func (e *RegistryExecutor) truncate(msg string) string {
	if len(msg) > e.config.MaxErrorMessageLength {
		return msg[:e.config.MaxErrorMessageLength]
	}
	return msg
}

// IsHealthy reports whether the executor can dispatch attempts. An
// in-process executor has no external dependency; an empty registry is
// the only misconfiguration worth flagging.
func (e *RegistryExecutor) IsHealthy(ctx context.Context) error {
	if len(e.registry.List()) == 0 {
		return fmt.Errorf("no task handlers registered")
	}
	return nil
}
