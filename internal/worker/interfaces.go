package worker

import (
	"context"
	"time"
)

// Worker is one logical claim-execute-report loop bound to a single
// queue. A worker never holds more than one claim at a time;
// concurrency comes from running many workers.
type Worker interface {
	// Run executes the claim loop until ctx is cancelled, the worker's
	// max-tasks budget is exhausted, or an unrecoverable broker/store
	// failure occurs. The returned error is nil on a clean exit and
	// ErrUnrecoverable (wrapped) on infrastructure death.
	Run(ctx context.Context) error

	// ID returns the worker's unique identity, recorded on every claim
	// it takes.
	ID() string

	// Stats returns a snapshot of the worker's counters.
	Stats() WorkerStats
}

// WorkerStats is a point-in-time snapshot of one worker's counters.
type WorkerStats struct {
	WorkerID        string    `json:"worker_id"`
	TasksClaimed    int64     `json:"tasks_claimed"`
	TasksSucceeded  int64     `json:"tasks_succeeded"`
	TasksFailed     int64     `json:"tasks_failed"`
	TasksTimedOut   int64     `json:"tasks_timed_out"`
	LastClaimAt     time.Time `json:"last_claim_at"`
	LastOutcomeAt   time.Time `json:"last_outcome_at"`
	ConsecutiveErrs int       `json:"consecutive_errors"`
}

// PoolStats aggregates worker counters across a pool plus the
// maintenance loops' progress.
type PoolStats struct {
	Queue          string        `json:"queue"`
	WorkerCount    int           `json:"worker_count"`
	Workers        []WorkerStats `json:"workers"`
	TasksSucceeded int64         `json:"tasks_succeeded"`
	TasksFailed    int64         `json:"tasks_failed"`
	PromoteSweeps  int64         `json:"promote_sweeps"`
	ReclaimSweeps  int64         `json:"reclaim_sweeps"`
	StartedAt      time.Time     `json:"started_at"`
}
