package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/riftworks/taskqueue/internal/models"
)

// MemoryBroker is an in-process Broker with the same ordering and
// atomicity semantics as the Redis-backed one: single-process
// deployments and tests use it to run the engine without a broker
// service. All operations are serialized behind one mutex, which makes
// every pop/push/promote trivially atomic.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string]*memoryQueue
	closed bool
}

type memoryQueue struct {
	seq     int64
	pending []pendingEntry
	delayed []delayedEntry
	// inflight is keyed by task ID; a task is never simultaneously
	// pending, delayed, and inflight.
	inflight map[uuid.UUID]InflightEntry
	dead     []DeadLetterEntry
}

type pendingEntry struct {
	taskID   uuid.UUID
	priority models.TaskPriority
	sequence int64
}

type delayedEntry struct {
	taskID   uuid.UUID
	priority models.TaskPriority
	sequence int64
	readyAt  time.Time
}

// NewMemoryBroker creates an empty in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{queues: make(map[string]*memoryQueue)}
}

func (b *MemoryBroker) queue(name string) *memoryQueue {
	q, ok := b.queues[name]
	if !ok {
		q = &memoryQueue{inflight: make(map[uuid.UUID]InflightEntry)}
		b.queues[name] = q
	}
	return q
}

func (b *MemoryBroker) errIfClosed(operation, queueName string) error {
	if b.closed {
		return NewQueueOperationError(operation, queueName, "", ErrQueueClosed, false)
	}
	return nil
}

// NextSequence returns a monotonically increasing per-queue counter.
func (b *MemoryBroker) NextSequence(ctx context.Context, queueName string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.errIfClosed("next_sequence", queueName); err != nil {
		return 0, err
	}
	q := b.queue(queueName)
	q.seq++
	return q.seq, nil
}

// PushPending admits taskID into the priority-ordered pending set.
func (b *MemoryBroker) PushPending(ctx context.Context, queueName string, taskID uuid.UUID, priority models.TaskPriority, sequence int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.errIfClosed("push_pending", queueName); err != nil {
		return err
	}
	q := b.queue(queueName)
	q.pending = append(q.pending, pendingEntry{taskID: taskID, priority: priority, sequence: sequence})
	sortPending(q.pending)
	return nil
}

func sortPending(entries []pendingEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority < entries[j].priority
		}
		return entries[i].sequence < entries[j].sequence
	})
}

// PopPending atomically claims the next task and records its inflight
// marker in the same critical section.
func (b *MemoryBroker) PopPending(ctx context.Context, queueName, workerID string, claimDeadline time.Time) (uuid.UUID, models.TaskPriority, int64, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.errIfClosed("pop_pending", queueName); err != nil {
		return uuid.Nil, 0, 0, false, err
	}
	q := b.queue(queueName)
	if len(q.pending) == 0 {
		return uuid.Nil, 0, 0, false, nil
	}

	entry := q.pending[0]
	q.pending = q.pending[1:]
	q.inflight[entry.taskID] = InflightEntry{
		TaskID:        entry.taskID,
		WorkerID:      workerID,
		ClaimDeadline: claimDeadline,
		QueueName:     queueName,
	}
	return entry.taskID, entry.priority, entry.sequence, true, nil
}

// ReturnToPending re-admits taskID and clears its inflight marker.
func (b *MemoryBroker) ReturnToPending(ctx context.Context, queueName string, taskID uuid.UUID, priority models.TaskPriority, sequence int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.errIfClosed("return_to_pending", queueName); err != nil {
		return err
	}
	q := b.queue(queueName)
	delete(q.inflight, taskID)
	q.pending = append(q.pending, pendingEntry{taskID: taskID, priority: priority, sequence: sequence})
	sortPending(q.pending)
	return nil
}

// ClearInflight removes the inflight marker for taskID.
func (b *MemoryBroker) ClearInflight(ctx context.Context, queueName string, taskID uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.errIfClosed("clear_inflight", queueName); err != nil {
		return err
	}
	delete(b.queue(queueName).inflight, taskID)
	return nil
}

// PushDelayed schedules taskID for re-admission at readyAt.
func (b *MemoryBroker) PushDelayed(ctx context.Context, queueName string, taskID uuid.UUID, priority models.TaskPriority, sequence int64, readyAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.errIfClosed("push_delayed", queueName); err != nil {
		return err
	}
	q := b.queue(queueName)
	q.delayed = append(q.delayed, delayedEntry{taskID: taskID, priority: priority, sequence: sequence, readyAt: readyAt})
	sort.SliceStable(q.delayed, func(i, j int) bool {
		return q.delayed[i].readyAt.Before(q.delayed[j].readyAt)
	})
	return nil
}

// PromoteDelayed moves every ready delayed entry back onto the pending
// set, preserving its original priority and sequence. Concurrent
// callers race only on the mutex, so each ready entry moves exactly
// once.
func (b *MemoryBroker) PromoteDelayed(ctx context.Context, queueName string, now time.Time) ([]uuid.UUID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.errIfClosed("promote_delayed", queueName); err != nil {
		return nil, err
	}
	q := b.queue(queueName)

	var promoted []uuid.UUID
	var remaining []delayedEntry
	for _, entry := range q.delayed {
		if entry.readyAt.After(now) {
			remaining = append(remaining, entry)
			continue
		}
		q.pending = append(q.pending, pendingEntry{taskID: entry.taskID, priority: entry.priority, sequence: entry.sequence})
		promoted = append(promoted, entry.taskID)
	}
	q.delayed = remaining
	sortPending(q.pending)
	return promoted, nil
}

// ReclaimStale returns and removes every inflight marker whose claim
// deadline has passed.
func (b *MemoryBroker) ReclaimStale(ctx context.Context, queueName string, now time.Time) ([]InflightEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.errIfClosed("reclaim_stale", queueName); err != nil {
		return nil, err
	}
	q := b.queue(queueName)

	var stale []InflightEntry
	for taskID, entry := range q.inflight {
		if entry.ClaimDeadline.Before(now) {
			stale = append(stale, entry)
			delete(q.inflight, taskID)
		}
	}
	return stale, nil
}

// PushDeadLetter mirrors a FAILED task into the dead-letter set.
func (b *MemoryBroker) PushDeadLetter(ctx context.Context, queueName string, taskID uuid.UUID, errorMessage string, failedAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.errIfClosed("push_dead_letter", queueName); err != nil {
		return err
	}
	q := b.queue(queueName)
	q.dead = append(q.dead, DeadLetterEntry{TaskID: taskID, ErrorMessage: errorMessage, FailedAt: failedAt})
	return nil
}

// ListDeadLetter returns the most recently dead-lettered tasks.
func (b *MemoryBroker) ListDeadLetter(ctx context.Context, queueName string, limit, offset int) ([]DeadLetterEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.errIfClosed("list_dead_letter", queueName); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	q := b.queue(queueName)

	// newest first
	entries := make([]DeadLetterEntry, len(q.dead))
	copy(entries, q.dead)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].FailedAt.After(entries[j].FailedAt)
	})

	if offset >= len(entries) {
		return nil, nil
	}
	entries = entries[offset:]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Stats reports pending/delayed/inflight counts for queueName.
func (b *MemoryBroker) Stats(ctx context.Context, queueName string) (*QueueStats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.errIfClosed("stats", queueName); err != nil {
		return nil, err
	}
	q := b.queue(queueName)
	return &QueueStats{
		Name:          queueName,
		PendingCount:  int64(len(q.pending)),
		DelayedCount:  int64(len(q.delayed)),
		InflightCount: int64(len(q.inflight)),
	}, nil
}

// IsHealthy reports whether the broker is usable.
func (b *MemoryBroker) IsHealthy(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrQueueClosed
	}
	return nil
}

// Close marks the broker unusable; subsequent operations fail.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
