package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/riftworks/taskqueue/internal/config"
	"github.com/riftworks/taskqueue/internal/models"
)

// RedisBroker implements Broker on top of Redis sorted sets and
// hashes, one namespace of keys per queue. Multi-step transitions
// run as Lua scripts so claims and promotions stay atomic.
type RedisBroker struct {
	client *RedisClient
	config *config.QueueConfig
	logger *slog.Logger
}

// NewRedisBroker creates a Redis-backed Broker.
func NewRedisBroker(client *RedisClient, cfg *config.QueueConfig, logger *slog.Logger) (*RedisBroker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("queue config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBroker{client: client, config: cfg, logger: logger}, nil
}

func (b *RedisBroker) pendingKey(queue string) string  { return FormatQueueKey(queue, "pending") }
func (b *RedisBroker) delayedKey(queue string) string  { return FormatQueueKey(queue, "delayed") }
func (b *RedisBroker) delayedMetaKey(queue string) string {
	return FormatQueueKey(queue, "delayed:meta")
}
func (b *RedisBroker) inflightKey(queue string) string { return FormatQueueKey(queue, "inflight") }
func (b *RedisBroker) inflightDeadlinesKey(queue string) string {
	return FormatQueueKey(queue, "inflight:deadlines")
}
func (b *RedisBroker) deadKey(queue string) string     { return FormatQueueKey(queue, "dead") }
func (b *RedisBroker) deadMetaKey(queue string) string { return FormatQueueKey(queue, "dead:meta") }
func (b *RedisBroker) seqKey(queue string) string      { return FormatQueueKey(queue, "seq") }

func pendingScore(priority models.TaskPriority, sequence int64) float64 {
	return float64(priority)*1e15 + float64(sequence)
}

func encodeMeta(priority models.TaskPriority, sequence int64) string {
	return fmt.Sprintf("%d:%d", priority, sequence)
}

// NextSequence returns a monotonically increasing per-queue counter.
func (b *RedisBroker) NextSequence(ctx context.Context, queueName string) (int64, error) {
	sequence, err := b.client.Incr(ctx, b.seqKey(queueName))
	if err != nil {
		return 0, NewQueueOperationError("next_sequence", queueName, "", err, true)
	}
	return sequence, nil
}

// PushPending admits taskID into the priority-ordered pending set.
func (b *RedisBroker) PushPending(ctx context.Context, queueName string, taskID uuid.UUID, priority models.TaskPriority, sequence int64) error {
	err := b.client.ZAddWithScore(ctx, b.pendingKey(queueName), pendingScore(priority, sequence), taskID.String())
	if err != nil {
		return NewQueueOperationError("push_pending", queueName, taskID.String(), err, true)
	}
	return nil
}

// popPendingScript atomically pops the lowest-scored (= highest
// priority, earliest FIFO) member from the pending set and records an
// inflight marker in the same round trip.
const popPendingScript = `
local member = redis.call('ZPOPMIN', KEYS[1], 1)
if #member == 0 then
	return {}
end
local taskID = member[1]
local score = member[2]
redis.call('HSET', KEYS[2], taskID, ARGV[1] .. '|' .. ARGV[2])
redis.call('ZADD', KEYS[3], ARGV[2], taskID)
return {taskID, score}
`

// PopPending atomically claims the next task for queueName.
func (b *RedisBroker) PopPending(ctx context.Context, queueName, workerID string, claimDeadline time.Time) (uuid.UUID, models.TaskPriority, int64, bool, error) {
	keys := []string{b.pendingKey(queueName), b.inflightKey(queueName), b.inflightDeadlinesKey(queueName)}
	args := []interface{}{workerID, claimDeadline.Unix()}

	result, err := b.client.EvalScript(ctx, popPendingScript, keys, args...)
	if err != nil {
		return uuid.Nil, 0, 0, false, NewQueueOperationError("pop_pending", queueName, "", err, true)
	}

	items, ok := result.([]interface{})
	if !ok || len(items) != 2 {
		return uuid.Nil, 0, 0, false, nil
	}

	taskIDStr, _ := items[0].(string)
	taskID, err := uuid.Parse(taskIDStr)
	if err != nil {
		return uuid.Nil, 0, 0, false, NewQueueOperationError("pop_pending", queueName, taskIDStr, err, false)
	}

	scoreStr := fmt.Sprintf("%v", items[1])
	score, err := strconv.ParseFloat(scoreStr, 64)
	if err != nil {
		return uuid.Nil, 0, 0, false, NewQueueOperationError("pop_pending", queueName, taskIDStr, err, false)
	}
	priority := models.TaskPriority(int64(score) / 1_000_000_000_000_000)
	sequence := int64(score) % 1_000_000_000_000_000

	return taskID, priority, sequence, true, nil
}

// ReturnToPending re-admits taskID and clears its inflight marker.
func (b *RedisBroker) ReturnToPending(ctx context.Context, queueName string, taskID uuid.UUID, priority models.TaskPriority, sequence int64) error {
	pipe := b.client.Pipeline()
	pipe.ZAdd(ctx, b.pendingKey(queueName), &redis.Z{Score: pendingScore(priority, sequence), Member: taskID.String()})
	pipe.HDel(ctx, b.inflightKey(queueName), taskID.String())
	pipe.ZRem(ctx, b.inflightDeadlinesKey(queueName), taskID.String())
	if err := b.client.ExecutePipeline(ctx, pipe); err != nil {
		return NewQueueOperationError("return_to_pending", queueName, taskID.String(), err, true)
	}
	return nil
}

// ClearInflight removes the inflight marker for taskID.
func (b *RedisBroker) ClearInflight(ctx context.Context, queueName string, taskID uuid.UUID) error {
	pipe := b.client.Pipeline()
	pipe.HDel(ctx, b.inflightKey(queueName), taskID.String())
	pipe.ZRem(ctx, b.inflightDeadlinesKey(queueName), taskID.String())
	if err := b.client.ExecutePipeline(ctx, pipe); err != nil {
		return NewQueueOperationError("clear_inflight", queueName, taskID.String(), err, true)
	}
	return nil
}

// PushDelayed schedules taskID for re-admission at readyAt.
func (b *RedisBroker) PushDelayed(ctx context.Context, queueName string, taskID uuid.UUID, priority models.TaskPriority, sequence int64, readyAt time.Time) error {
	pipe := b.client.Pipeline()
	pipe.ZAdd(ctx, b.delayedKey(queueName), &redis.Z{Score: float64(readyAt.Unix()), Member: taskID.String()})
	pipe.HSet(ctx, b.delayedMetaKey(queueName), taskID.String(), encodeMeta(priority, sequence))
	if err := b.client.ExecutePipeline(ctx, pipe); err != nil {
		return NewQueueOperationError("push_delayed", queueName, taskID.String(), err, true)
	}
	return nil
}

// promoteDelayedScript atomically moves every ready delayed entry
// into pending, using its preserved priority/sequence metadata.
const promoteDelayedScript = `
local ready = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local promoted = {}
for _, taskID in ipairs(ready) do
	local meta = redis.call('HGET', KEYS[2], taskID)
	if meta then
		local sep = string.find(meta, ':')
		local priority = tonumber(string.sub(meta, 1, sep - 1))
		local sequence = tonumber(string.sub(meta, sep + 1))
		local score = priority * 1000000000000000 + sequence
		redis.call('ZADD', KEYS[3], score, taskID)
		redis.call('ZREM', KEYS[1], taskID)
		redis.call('HDEL', KEYS[2], taskID)
		table.insert(promoted, taskID)
	else
		redis.call('ZREM', KEYS[1], taskID)
	end
end
return promoted
`

// PromoteDelayed moves ready delayed tasks back onto the pending set.
func (b *RedisBroker) PromoteDelayed(ctx context.Context, queueName string, now time.Time) ([]uuid.UUID, error) {
	keys := []string{b.delayedKey(queueName), b.delayedMetaKey(queueName), b.pendingKey(queueName)}
	result, err := b.client.EvalScript(ctx, promoteDelayedScript, keys, now.Unix())
	if err != nil {
		return nil, NewQueueOperationError("promote_delayed", queueName, "", err, true)
	}

	raw, ok := result.([]interface{})
	if !ok {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(raw))
	for _, item := range raw {
		s, _ := item.(string)
		id, err := uuid.Parse(s)
		if err != nil {
			b.logger.Warn("dropping malformed delayed task id during promotion", "raw", s, "error", err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ReclaimStale returns every inflight marker past its claim deadline
// and removes it from the broker.
func (b *RedisBroker) ReclaimStale(ctx context.Context, queueName string, now time.Time) ([]InflightEntry, error) {
	expired, err := b.client.ZRangeByScoreWithLimit(ctx, b.inflightDeadlinesKey(queueName), "-inf", fmt.Sprintf("%d", now.Unix()), 0, -1)
	if err != nil {
		return nil, NewQueueOperationError("reclaim_stale", queueName, "", err, true)
	}
	if len(expired) == 0 {
		return nil, nil
	}

	entries := make([]InflightEntry, 0, len(expired))
	for _, taskIDStr := range expired {
		raw, err := b.client.HGet(ctx, b.inflightKey(queueName), taskIDStr)
		if err != nil {
			continue
		}
		taskID, err := uuid.Parse(taskIDStr)
		if err != nil {
			continue
		}
		workerID, deadline := parseInflightValue(raw)
		entries = append(entries, InflightEntry{
			TaskID:        taskID,
			WorkerID:      workerID,
			ClaimDeadline: deadline,
			QueueName:     queueName,
		})

		pipe := b.client.Pipeline()
		pipe.HDel(ctx, b.inflightKey(queueName), taskIDStr)
		pipe.ZRem(ctx, b.inflightDeadlinesKey(queueName), taskIDStr)
		if err := b.client.ExecutePipeline(ctx, pipe); err != nil {
			b.logger.Error("failed to clear reclaimed inflight marker", "task_id", taskIDStr, "error", err)
		}
	}
	return entries, nil
}

func parseInflightValue(raw string) (workerID string, deadline time.Time) {
	parts := strings.SplitN(raw, "|", 2)
	if len(parts) != 2 {
		return raw, time.Time{}
	}
	unix, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return parts[0], time.Time{}
	}
	return parts[0], time.Unix(unix, 0)
}

// PushDeadLetter mirrors a FAILED task into the dead-letter set.
func (b *RedisBroker) PushDeadLetter(ctx context.Context, queueName string, taskID uuid.UUID, errorMessage string, failedAt time.Time) error {
	pipe := b.client.Pipeline()
	pipe.ZAdd(ctx, b.deadKey(queueName), &redis.Z{Score: float64(failedAt.Unix()), Member: taskID.String()})
	pipe.HSet(ctx, b.deadMetaKey(queueName), taskID.String(), errorMessage)
	if err := b.client.ExecutePipeline(ctx, pipe); err != nil {
		return NewQueueOperationError("push_dead_letter", queueName, taskID.String(), err, true)
	}
	return nil
}

// ListDeadLetter returns the most recently dead-lettered tasks.
func (b *RedisBroker) ListDeadLetter(ctx context.Context, queueName string, limit, offset int) ([]DeadLetterEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	raw, err := b.client.ZRevRangeWithScores(ctx, b.deadKey(queueName), int64(offset), int64(offset+limit-1))
	if err != nil {
		return nil, NewQueueOperationError("list_dead_letter", queueName, "", err, true)
	}

	entries := make([]DeadLetterEntry, 0, len(raw))
	for _, z := range raw {
		taskIDStr, _ := z.Member.(string)
		taskID, err := uuid.Parse(taskIDStr)
		if err != nil {
			continue
		}
		msg, _ := b.client.HGet(ctx, b.deadMetaKey(queueName), taskIDStr)
		entries = append(entries, DeadLetterEntry{
			TaskID:       taskID,
			ErrorMessage: msg,
			FailedAt:     time.Unix(int64(z.Score), 0),
		})
	}
	return entries, nil
}

// Stats reports pending/delayed/inflight counts for queueName.
func (b *RedisBroker) Stats(ctx context.Context, queueName string) (*QueueStats, error) {
	pipe := b.client.Pipeline()
	pendingCount := pipe.ZCard(ctx, b.pendingKey(queueName))
	delayedCount := pipe.ZCard(ctx, b.delayedKey(queueName))
	inflightCount := pipe.ZCard(ctx, b.inflightDeadlinesKey(queueName))
	if err := b.client.ExecutePipeline(ctx, pipe); err != nil {
		return nil, NewQueueOperationError("stats", queueName, "", err, true)
	}

	stats := &QueueStats{
		Name:          queueName,
		PendingCount:  pendingCount.Val(),
		DelayedCount:  delayedCount.Val(),
		InflightCount: inflightCount.Val(),
	}

	// OldestPendingAge is left unset: the pending score carries only
	// priority and FIFO sequence, not wall-clock enqueue time, so the
	// broker alone cannot derive it.
	return stats, nil
}

// IsHealthy reports whether the underlying Redis connection is usable.
func (b *RedisBroker) IsHealthy(ctx context.Context) error {
	return b.client.IsHealthy(ctx)
}

// Close releases the broker's Redis connection.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}
