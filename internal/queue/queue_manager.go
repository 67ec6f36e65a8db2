package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riftworks/taskqueue/internal/config"
	"github.com/riftworks/taskqueue/internal/database"
	"github.com/riftworks/taskqueue/internal/models"
)

// claimGraceSeconds is the small constant added to
// models.MaxTimeoutSeconds when computing a claim_deadline, giving a
// worker a margin beyond the longest per-attempt timeout before
// reclaim_stale treats the claim as abandoned. The task's own timeout
// does not shorten the deadline.
const claimGraceSeconds = 30

// TaskQueueManager is the queue manager: the only component
// that writes to the Metadata Store and the Broker, mediating between
// the two and enforcing the task lifecycle invariants.
type TaskQueueManager struct {
	tasks    database.TaskRepository
	attempts database.AttemptRepository
	broker   Broker
	config   *config.QueueConfig
	logger   *slog.Logger
}

// NewTaskQueueManager creates a Queue Manager over the given Metadata
// Store repositories and Broker.
func NewTaskQueueManager(tasks database.TaskRepository, attempts database.AttemptRepository, broker Broker, cfg *config.QueueConfig, logger *slog.Logger) (*TaskQueueManager, error) {
	if tasks == nil {
		return nil, fmt.Errorf("task repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if broker == nil {
		return nil, fmt.Errorf("broker is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("queue config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskQueueManager{tasks: tasks, attempts: attempts, broker: broker, config: cfg, logger: logger}, nil
}

// Enqueue validates and inserts a new Task Record, then pushes it onto
// the broker's pending list. The durable insert happens
// before the broker push; if the broker push fails the error is logged,
// Enqueue returns nil, and the record stays PENDING without a broker
// entry. No sweep re-admits such a record to the pending list.
func (m *TaskQueueManager) Enqueue(ctx context.Context, task *models.Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}
	if err := models.ValidateTaskName(task.TaskName); err != nil {
		return err
	}
	if task.QueueName == "" {
		task.QueueName = m.config.DefaultQueueName
	}
	task.Status = models.TaskStatusPending
	task.RetryCount = 0

	if err := m.tasks.Create(ctx, task); err != nil {
		return fmt.Errorf("failed to create task record: %w", err)
	}

	sequence, err := m.broker.NextSequence(ctx, task.QueueName)
	if err != nil {
		m.logger.Error("broker sequence allocation failed after durable insert; task remains PENDING without a broker entry",
			"task_id", task.ID, "queue", task.QueueName, "error", err)
		return nil
	}
	if err := m.broker.PushPending(ctx, task.QueueName, task.ID, task.Priority, sequence); err != nil {
		m.logger.Error("broker push failed after durable insert; task remains PENDING without a broker entry",
			"task_id", task.ID, "queue", task.QueueName, "error", err)
		return nil
	}

	m.logger.Debug("task enqueued", "task_id", task.ID, "queue", task.QueueName, "priority", task.Priority)
	return nil
}

// ClaimNext pops the highest-priority task ID for queueName,
// transitions it to PROCESSING, and returns the full record. nil is
// returned (no error) when the queue is empty.
func (m *TaskQueueManager) ClaimNext(ctx context.Context, queueName, workerID string) (*models.Task, error) {
	task, sequence, found, err := m.popAndLoad(ctx, queueName, workerID)
	if err != nil || !found {
		return nil, err
	}

	now := time.Now()
	task.Status = models.TaskStatusProcessing
	if task.StartedAt == nil {
		task.StartedAt = &now
	}

	if err := m.tasks.Update(ctx, task); err != nil {
		// Compensate: the broker pop already removed the task from
		// pending and recorded an inflight marker. Return it so the
		// next claim can try again.
		m.logger.Error("metadata transition to PROCESSING failed; returning task to pending",
			"task_id", task.ID, "queue", queueName, "error", err)
		if retErr := m.broker.ReturnToPending(ctx, queueName, task.ID, task.Priority, sequence); retErr != nil {
			m.logger.Error("failed to return task to pending after metadata failure",
				"task_id", task.ID, "queue", queueName, "error", retErr)
		}
		return nil, fmt.Errorf("failed to transition task to PROCESSING: %w", err)
	}

	return task, nil
}

// popAndLoad pops the next pending task ID off the broker and loads
// its full record from the Metadata Store. The returned sequence is
// the broker's FIFO tie-break value, kept only to support the
// ReturnToPending compensation path in ClaimNext.
func (m *TaskQueueManager) popAndLoad(ctx context.Context, queueName, workerID string) (*models.Task, int64, bool, error) {
	// The claim_deadline is set before the task record is loaded, so it
	// is derived from the engine-wide timeout ceiling rather than the
	// task's own timeout. It is not updated after the claim; completion
	// and failure clear the marker instead.
	claimDeadline := time.Now().Add(time.Duration(models.MaxTimeoutSeconds+claimGraceSeconds) * time.Second)

	taskID, _, sequence, found, err := m.broker.PopPending(ctx, queueName, workerID, claimDeadline)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to pop pending task: %w", err)
	}
	if !found {
		return nil, 0, false, nil
	}

	task, err := m.tasks.GetByID(ctx, taskID)
	if err != nil {
		m.logger.Error("pending task ID has no metadata record; clearing inflight marker",
			"task_id", taskID, "queue", queueName, "error", err)
		if clearErr := m.broker.ClearInflight(ctx, queueName, taskID); clearErr != nil {
			m.logger.Error("failed to clear inflight marker for orphaned task ID",
				"task_id", taskID, "queue", queueName, "error", clearErr)
		}
		return nil, 0, false, fmt.Errorf("failed to load claimed task: %w", err)
	}

	return task, sequence, true, nil
}

// Complete transitions a claimed task to SUCCESS and records its
// result.
func (m *TaskQueueManager) Complete(ctx context.Context, taskID uuid.UUID, result models.RawJSON, info AttemptInfo) error {
	task, err := m.tasks.GetByID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to load task for completion: %w", err)
	}

	now := time.Now()
	task.Status = models.TaskStatusSuccess
	task.Result = result
	task.CompletedAt = &now

	if err := m.tasks.Update(ctx, task); err != nil {
		return fmt.Errorf("failed to persist completion: %w", err)
	}

	if err := m.appendAttempt(ctx, task, models.AttemptOutcomeSuccess, result, nil, info); err != nil {
		m.logger.Error("failed to append success attempt record", "task_id", taskID, "error", err)
	}

	if err := m.broker.ClearInflight(ctx, task.QueueName, taskID); err != nil {
		m.logger.Error("failed to clear inflight marker after completion", "task_id", taskID, "error", err)
	}

	return nil
}

// Fail decides between RETRY and FAILED based on the task's
// max_retries and routes accordingly.
func (m *TaskQueueManager) Fail(ctx context.Context, taskID uuid.UUID, errorMessage string, info AttemptInfo) error {
	task, err := m.tasks.GetByID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to load task for failure handling: %w", err)
	}
	return m.failLoaded(ctx, task, errorMessage, info, false)
}

// FailPermanently marks the task FAILED without consuming its
// remaining retries; the non-retryable path for failures such as an
// unresolvable task name.
func (m *TaskQueueManager) FailPermanently(ctx context.Context, taskID uuid.UUID, errorMessage string, info AttemptInfo) error {
	task, err := m.tasks.GetByID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to load task for failure handling: %w", err)
	}
	return m.failLoaded(ctx, task, errorMessage, info, true)
}

func (m *TaskQueueManager) failLoaded(ctx context.Context, task *models.Task, errorMessage string, info AttemptInfo, permanent bool) error {
	now := time.Now()
	msg := errorMessage

	if permanent {
		// Non-retryable class: consume the remaining retry budget so
		// attempts_used > max_retries holds terminally.
		task.RetryCount = task.MaxRetries
	}

	if task.RetryCount+1 > task.MaxRetries || permanent {
		task.Status = models.TaskStatusFailed
		task.ErrorMessage = &msg
		task.CompletedAt = &now
		task.NextRetryAt = nil

		if err := m.tasks.Update(ctx, task); err != nil {
			return fmt.Errorf("failed to persist terminal failure: %w", err)
		}

		if err := m.broker.PushDeadLetter(ctx, task.QueueName, task.ID, errorMessage, now); err != nil {
			m.logger.Error("failed to mirror task into dead-letter set", "task_id", task.ID, "error", err)
		}
	} else {
		task.Status = models.TaskStatusRetry
		task.RetryCount++
		task.ErrorMessage = &msg
		backoff := CalculateBackoff(task.RetryCount, task.RetryDelay)
		nextRetryAt := now.Add(backoff)
		task.NextRetryAt = &nextRetryAt

		if err := m.tasks.Update(ctx, task); err != nil {
			return fmt.Errorf("failed to persist retry transition: %w", err)
		}

		sequence, err := m.broker.NextSequence(ctx, task.QueueName)
		if err != nil {
			m.logger.Error("failed to allocate sequence for delayed re-entry", "task_id", task.ID, "error", err)
			sequence = 0
		}
		if err := m.broker.PushDelayed(ctx, task.QueueName, task.ID, task.Priority, sequence, nextRetryAt); err != nil {
			m.logger.Error("failed to push task into delayed set", "task_id", task.ID, "error", err)
		}
	}

	outcome := models.AttemptOutcomeFailed
	if info.TimedOut {
		outcome = models.AttemptOutcomeTimeout
	}
	if err := m.appendAttempt(ctx, task, outcome, models.RawJSON{}, &msg, info); err != nil {
		m.logger.Error("failed to append failed attempt record", "task_id", task.ID, "error", err)
	}

	if err := m.broker.ClearInflight(ctx, task.QueueName, task.ID); err != nil {
		m.logger.Error("failed to clear inflight marker after failure", "task_id", task.ID, "error", err)
	}

	return nil
}

// appendAttempt records one row of execution history, additive to
// the task record's required fields.
func (m *TaskQueueManager) appendAttempt(ctx context.Context, task *models.Task, outcome models.AttemptOutcome, result models.RawJSON, errMsg *string, info AttemptInfo) error {
	startedAt := info.StartedAt
	if startedAt.IsZero() {
		if task.StartedAt != nil {
			startedAt = *task.StartedAt
		} else {
			startedAt = time.Now()
		}
	}
	completedAt := info.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now()
	}

	attemptNumber := task.RetryCount
	if task.Status != models.TaskStatusRetry {
		// Terminal outcome: retry_count failed attempts preceded this
		// one, so this is attempt retry_count+1. On a RETRY transition
		// retry_count was just incremented and already counts it.
		attemptNumber = task.RetryCount + 1
	}

	attempt := &models.Attempt{
		TaskID:        task.ID,
		AttemptNumber: attemptNumber,
		WorkerID:      info.WorkerID,
		Outcome:       outcome,
		Result:        result,
		ErrorMessage:  errMsg,
		StartedAt:     startedAt,
		CompletedAt:   &completedAt,
	}
	if info.ExecutionTimeMs > 0 {
		ms := info.ExecutionTimeMs
		attempt.ExecutionTimeMs = &ms
	}
	return m.attempts.Create(ctx, attempt)
}

// PromoteDelayed moves every ready delayed task back to PENDING for
// queueName, idempotent under concurrent
// callers.
func (m *TaskQueueManager) PromoteDelayed(ctx context.Context, queueName string) error {
	promoted, err := m.broker.PromoteDelayed(ctx, queueName, time.Now())
	if err != nil {
		return fmt.Errorf("failed to promote delayed tasks: %w", err)
	}

	for _, taskID := range promoted {
		task, err := m.tasks.GetByID(ctx, taskID)
		if err != nil {
			m.logger.Error("failed to load promoted task", "task_id", taskID, "error", err)
			continue
		}
		if task.Status != models.TaskStatusRetry {
			continue // already promoted by a concurrent caller
		}
		task.Status = models.TaskStatusPending
		task.NextRetryAt = nil
		if err := m.tasks.Update(ctx, task); err != nil {
			m.logger.Error("failed to flip promoted task back to PENDING", "task_id", taskID, "error", err)
		}
	}
	return nil
}

// ReclaimStale routes every expired inflight claim in queueName
// through Fail, as if the attempt had errored.
func (m *TaskQueueManager) ReclaimStale(ctx context.Context, queueName string) error {
	stale, err := m.broker.ReclaimStale(ctx, queueName, time.Now())
	if err != nil {
		return fmt.Errorf("failed to reclaim stale claims: %w", err)
	}

	for _, entry := range stale {
		m.logger.Warn("reclaiming stale inflight claim", "task_id", entry.TaskID, "worker_id", entry.WorkerID, "queue", queueName)
		if err := m.Fail(ctx, entry.TaskID, "worker claim expired before completion", AttemptInfo{WorkerID: entry.WorkerID}); err != nil {
			m.logger.Error("failed to route reclaimed task through fail", "task_id", entry.TaskID, "error", err)
		}
	}
	return nil
}

// Stats exposes the broker-side queue statistics unchanged;
// OldestPendingAge is not filled in.
func (m *TaskQueueManager) Stats(ctx context.Context, queueName string) (*QueueStats, error) {
	stats, err := m.broker.Stats(ctx, queueName)
	if err != nil {
		return nil, fmt.Errorf("failed to get broker stats: %w", err)
	}
	return stats, nil
}

// DeadLetter lists the most recently dead-lettered tasks for
// queueName, newest first.
func (m *TaskQueueManager) DeadLetter(ctx context.Context, queueName string, limit, offset int) ([]DeadLetterEntry, error) {
	entries, err := m.broker.ListDeadLetter(ctx, queueName, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead-letter entries: %w", err)
	}
	return entries, nil
}
