package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/riftworks/taskqueue/internal/models"
)

// InflightEntry describes a claimed-but-not-yet-resolved task, the
// compensation anchor the recovery sweep uses to detect crashed
// workers.
type InflightEntry struct {
	TaskID        uuid.UUID
	WorkerID      string
	ClaimDeadline time.Time
	QueueName     string
}

// Broker is the dispatch-side store the engine claims work from: a
// per-queue pending list ordered by (priority, enqueue sequence), a
// delayed set keyed by ready_at, and an inflight marker per claim. It
// holds only task IDs and small hints, never the full Task Record.
type Broker interface {
	// NextSequence returns a monotonically increasing counter for
	// queueName, used as the FIFO tie-break component of the pending
	// score.
	NextSequence(ctx context.Context, queueName string) (int64, error)

	// PushPending admits taskID into pending:{queueName} at the given
	// priority/sequence score.
	PushPending(ctx context.Context, queueName string, taskID uuid.UUID, priority models.TaskPriority, sequence int64) error

	// PopPending atomically removes the highest-priority, earliest-
	// sequenced task ID from pending:{queueName} and records an
	// inflight marker for it in the same operation. found is false
	// when the pending list is empty.
	PopPending(ctx context.Context, queueName, workerID string, claimDeadline time.Time) (taskID uuid.UUID, priority models.TaskPriority, sequence int64, found bool, err error)

	// ReturnToPending re-admits taskID to pending:{queueName} at its
	// original priority/sequence and clears any inflight marker; used
	// when the metadata-store half of claim_next fails after the
	// broker pop already succeeded.
	ReturnToPending(ctx context.Context, queueName string, taskID uuid.UUID, priority models.TaskPriority, sequence int64) error

	// ClearInflight removes the inflight marker for taskID, called on
	// both complete() and fail().
	ClearInflight(ctx context.Context, queueName string, taskID uuid.UUID) error

	// PushDelayed inserts taskID into delayed:{queueName} scored by
	// readyAt, preserving priority/sequence for when it is promoted
	// back to pending.
	PushDelayed(ctx context.Context, queueName string, taskID uuid.UUID, priority models.TaskPriority, sequence int64, readyAt time.Time) error

	// PromoteDelayed atomically moves every delayed:{queueName} entry
	// whose ready_at <= now into pending:{queueName} at its original
	// priority/sequence, and returns the promoted task IDs. Calling it
	// twice in succession moves each ready task exactly once.
	PromoteDelayed(ctx context.Context, queueName string, now time.Time) ([]uuid.UUID, error)

	// ReclaimStale returns (and removes) every inflight marker in
	// queueName whose claim_deadline has passed now.
	ReclaimStale(ctx context.Context, queueName string, now time.Time) ([]InflightEntry, error)

	// PushDeadLetter mirrors a permanently FAILED task into the
	// operator-visibility dead-letter set; the task record's FAILED
	// state is unaffected.
	PushDeadLetter(ctx context.Context, queueName string, taskID uuid.UUID, errorMessage string, failedAt time.Time) error

	// ListDeadLetter returns the most recent dead-lettered task IDs
	// for queueName, most recent first.
	ListDeadLetter(ctx context.Context, queueName string, limit, offset int) ([]DeadLetterEntry, error)

	// Stats returns the pending/delayed/inflight counts for queueName.
	// OldestPendingAge is left unset.
	Stats(ctx context.Context, queueName string) (*QueueStats, error)

	// IsHealthy reports whether the broker connection is usable.
	IsHealthy(ctx context.Context) error

	// Close releases the broker's underlying connection.
	Close() error
}

// DeadLetterEntry is one dead-lettered task, as recorded by fail().
type DeadLetterEntry struct {
	TaskID       uuid.UUID
	ErrorMessage string
	FailedAt     time.Time
}

// QueueStats summarizes one queue's broker-side state.
type QueueStats struct {
	Name             string         `json:"name"`
	PendingCount     int64          `json:"pending_count"`
	DelayedCount     int64          `json:"delayed_count"`
	InflightCount    int64          `json:"inflight_count"`
	OldestPendingAge *time.Duration `json:"oldest_pending_age,omitempty"`
}

// AttemptInfo carries the executing worker's view of one finished
// attempt, recorded alongside the state transition in the per-attempt
// history.
type AttemptInfo struct {
	WorkerID        string
	StartedAt       time.Time
	CompletedAt     time.Time
	ExecutionTimeMs int
	TimedOut        bool
}

// Manager mediates between the Metadata Store and the Broker, and is
// the only component that writes to either.
type Manager interface {
	// Enqueue validates and inserts a new Task Record, then pushes it
	// onto the broker's pending list. The durable write happens
	// before the broker push; if the broker push fails the record
	// stays PENDING without a broker entry, and no sweep re-admits it.
	Enqueue(ctx context.Context, task *models.Task) error

	// ClaimNext pops the highest-priority task ID for queueName,
	// transitions it to PROCESSING, and returns the full record. nil
	// is returned (no error) when the queue is empty.
	ClaimNext(ctx context.Context, queueName, workerID string) (*models.Task, error)

	// Complete transitions a claimed task to SUCCESS and records its
	// result.
	Complete(ctx context.Context, taskID uuid.UUID, result models.RawJSON, info AttemptInfo) error

	// Fail decides between RETRY and FAILED based on the task's
	// max_retries and routes accordingly.
	Fail(ctx context.Context, taskID uuid.UUID, errorMessage string, info AttemptInfo) error

	// FailPermanently marks a task FAILED regardless of remaining
	// retries; used for non-retryable failure classes such as an
	// unresolvable task name.
	FailPermanently(ctx context.Context, taskID uuid.UUID, errorMessage string, info AttemptInfo) error

	// PromoteDelayed moves every ready delayed task back to PENDING
	// for queueName.
	PromoteDelayed(ctx context.Context, queueName string) error

	// ReclaimStale routes every expired inflight claim in queueName
	// through Fail, as if the attempt had errored.
	ReclaimStale(ctx context.Context, queueName string) error

	// Stats exposes broker-side queue statistics.
	Stats(ctx context.Context, queueName string) (*QueueStats, error)

	// DeadLetter lists the most recently dead-lettered tasks for
	// operator inspection.
	DeadLetter(ctx context.Context, queueName string, limit, offset int) ([]DeadLetterEntry, error)
}
