package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riftworks/taskqueue/internal/executor"
	"github.com/riftworks/taskqueue/internal/models"
	"github.com/riftworks/taskqueue/internal/queue"
	"github.com/riftworks/taskqueue/internal/registry"
)

// ErrUnrecoverable signals that the broker or metadata store has
// failed persistently and the worker cannot continue. The process
// should exit with code 2 so a supervisor can restart it.
var ErrUnrecoverable = errors.New("unrecoverable broker/store failure")

// maxConsecutiveInfraErrors is how many back-to-back broker/store
// failures a worker tolerates before declaring itself unrecoverable.
const maxConsecutiveInfraErrors = 10

// TaskWorker is one logical worker: claim, dispatch
// under the task's timeout, classify, report. It claims at most one
// task at a time.
type TaskWorker struct {
	id           string
	queueName    string
	manager      queue.Manager
	executor     executor.TaskExecutor
	pollInterval time.Duration
	maxTasks     int
	logger       *slog.Logger

	claimed    atomic.Int64
	succeeded  atomic.Int64
	failed     atomic.Int64
	timedOut   atomic.Int64
	statsMu    sync.Mutex
	lastClaim  time.Time
	lastResult time.Time
	consecErrs int
}

// NewTaskWorker creates a worker bound to queueName. maxTasks bounds
// how many attempts the worker completes before exiting; 0 means
// unbounded.
func NewTaskWorker(id, queueName string, manager queue.Manager, exec executor.TaskExecutor, pollInterval time.Duration, maxTasks int, logger *slog.Logger) (*TaskWorker, error) {
	if id == "" {
		return nil, fmt.Errorf("worker id is required")
	}
	if queueName == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	if manager == nil {
		return nil, fmt.Errorf("queue manager is required")
	}
	if exec == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskWorker{
		id:           id,
		queueName:    queueName,
		manager:      manager,
		executor:     exec,
		pollInterval: pollInterval,
		maxTasks:     maxTasks,
		logger:       logger.With("worker_id", id, "queue", queueName),
	}, nil
}

// ID returns the worker's unique identity.
func (w *TaskWorker) ID() string {
	return w.id
}

// Run executes the claim loop. Cooperative shutdown is honoured
// between attempts only: an attempt already dispatched runs to its
// own timeout even if ctx is cancelled.
func (w *TaskWorker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "poll_interval", w.pollInterval, "max_tasks", w.maxTasks)

	var completed int
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping", "completed_attempts", completed)
			return nil
		default:
		}

		if w.maxTasks > 0 && completed >= w.maxTasks {
			w.logger.Info("worker reached max tasks, exiting", "completed_attempts", completed)
			return nil
		}

		task, err := w.manager.ClaimNext(ctx, w.queueName, w.id)
		if err != nil {
			if fatal := w.recordInfraError(err); fatal != nil {
				return fatal
			}
			w.sleep(ctx)
			continue
		}
		w.resetInfraErrors()

		if task == nil {
			w.sleep(ctx)
			continue
		}

		w.claimed.Add(1)
		w.statsMu.Lock()
		w.lastClaim = time.Now()
		w.statsMu.Unlock()

		if err := w.processAttempt(ctx, task); err != nil {
			if fatal := w.recordInfraError(err); fatal != nil {
				return fatal
			}
			continue
		}
		w.resetInfraErrors()
		completed++
	}
}

// processAttempt dispatches one claimed task and commits its outcome.
// The returned error is infrastructure-only: handler failures have
// already been converted into state transitions by the time it
// returns nil.
func (w *TaskWorker) processAttempt(ctx context.Context, task *models.Task) error {
	logger := w.logger.With("task_id", task.ID, "task_name", task.TaskName)
	logger.Debug("attempt started", "attempt", task.AttemptsUsed())

	// The attempt must not be interrupted by worker shutdown; it is
	// bounded by its own timeout instead.
	attemptCtx := context.WithoutCancel(ctx)

	outcome, err := w.executor.Execute(attemptCtx, task)
	if err != nil {
		var unknown *registry.UnknownTaskError
		if errors.As(err, &unknown) {
			// Non-retryable: the task becomes FAILED immediately with
			// its retry budget consumed.
			logger.Warn("task name not registered, failing permanently")
			w.failed.Add(1)
			return w.manager.FailPermanently(attemptCtx, task.ID, unknown.Error(), queue.AttemptInfo{
				WorkerID: w.id,
			})
		}
		return fmt.Errorf("dispatch failed: %w", err)
	}

	info := queue.AttemptInfo{
		WorkerID:        w.id,
		StartedAt:       outcome.StartedAt,
		CompletedAt:     outcome.CompletedAt,
		ExecutionTimeMs: outcome.ExecutionTimeMs,
		TimedOut:        outcome.TimedOut,
	}

	w.statsMu.Lock()
	w.lastResult = time.Now()
	w.statsMu.Unlock()

	if outcome.OK {
		w.succeeded.Add(1)
		logger.Info("attempt succeeded", "execution_time_ms", outcome.ExecutionTimeMs)
		return w.manager.Complete(attemptCtx, task.ID, outcome.Result, info)
	}

	if outcome.TimedOut {
		w.timedOut.Add(1)
	}
	w.failed.Add(1)
	logger.Warn("attempt failed", "error", outcome.ErrorMessage, "timed_out", outcome.TimedOut)
	return w.manager.Fail(attemptCtx, task.ID, outcome.ErrorMessage, info)
}

// recordInfraError counts a broker/store failure; after too many in a
// row the worker gives up so the process can exit with code 2.
func (w *TaskWorker) recordInfraError(err error) error {
	w.statsMu.Lock()
	w.consecErrs++
	consec := w.consecErrs
	w.statsMu.Unlock()

	if !queue.IsRetryableError(err) || consec >= maxConsecutiveInfraErrors {
		w.logger.Error("unrecoverable infrastructure failure", "error", err, "consecutive_errors", consec)
		return fmt.Errorf("%w: %v", ErrUnrecoverable, err)
	}

	w.logger.Warn("transient infrastructure error, retrying in place", "error", err, "consecutive_errors", consec)
	return nil
}

func (w *TaskWorker) resetInfraErrors() {
	w.statsMu.Lock()
	w.consecErrs = 0
	w.statsMu.Unlock()
}

// sleep waits one poll interval or until ctx is cancelled.
func (w *TaskWorker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Stats returns a snapshot of the worker's counters.
func (w *TaskWorker) Stats() WorkerStats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return WorkerStats{
		WorkerID:        w.id,
		TasksClaimed:    w.claimed.Load(),
		TasksSucceeded:  w.succeeded.Load(),
		TasksFailed:     w.failed.Load(),
		TasksTimedOut:   w.timedOut.Load(),
		LastClaimAt:     w.lastClaim,
		LastOutcomeAt:   w.lastResult,
		ConsecutiveErrs: w.consecErrs,
	}
}
