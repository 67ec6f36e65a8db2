package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
	"github.com/riftworks/taskqueue/internal/config"
)

// RedisClient is the broker's thin transport layer: it owns the
// go-redis connection and converts transport failures into the queue
// error taxonomy. Only the primitives the broker actually exercises
// are surfaced.
type RedisClient struct {
	client *redis.Client
	config *config.RedisConfig
	logger *slog.Logger
}

// NewRedisClient dials the broker's Redis instance.
func NewRedisClient(cfg *config.RedisConfig, logger *slog.Logger) (*RedisClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConnections,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	})

	return &RedisClient{client: client, config: cfg, logger: logger}, nil
}

// wrap converts a raw redis error into the queue error taxonomy; all
// transport-level failures are considered retryable.
func wrap(operation string, err error) error {
	if err == nil {
		return nil
	}
	return NewQueueError(operation, err, true)
}

// Ping tests the connection.
func (r *RedisClient) Ping(ctx context.Context) error {
	return wrap("ping", r.client.Ping(ctx).Err())
}

// IsHealthy reports whether the connection is usable, logging pool
// pressure as a side signal.
func (r *RedisClient) IsHealthy(ctx context.Context) error {
	if err := r.Ping(ctx); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	stats := r.client.PoolStats()
	if r.config.PoolSize > 0 && int64(stats.TotalConns) >= int64(r.config.PoolSize) {
		r.logger.Warn("redis connection pool at capacity",
			"total_conns", stats.TotalConns,
			"pool_size", r.config.PoolSize)
	}
	return nil
}

// Close releases the connection.
func (r *RedisClient) Close() error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Close(); err != nil {
		return wrap("close", err)
	}
	return nil
}

// Incr increments and returns the counter at key.
func (r *RedisClient) Incr(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Incr(ctx, key).Result()
	return n, wrap("incr", err)
}

// ZAddWithScore inserts member into the sorted set at key.
func (r *RedisClient) ZAddWithScore(ctx context.Context, key string, score float64, member interface{}) error {
	return wrap("zadd", r.client.ZAdd(ctx, key, &redis.Z{Score: score, Member: member}).Err())
}

// ZRangeByScoreWithLimit reads members of key whose scores fall in
// [min, max], paginated.
func (r *RedisClient) ZRangeByScoreWithLimit(ctx context.Context, key, min, max string, offset, count int64) ([]string, error) {
	members, err := r.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:    min,
		Max:    max,
		Offset: offset,
		Count:  count,
	}).Result()
	if err != nil {
		return nil, wrap("zrangebyscore", err)
	}
	return members, nil
}

// ZRevRangeWithScores reads a descending score-ordered slice of key.
func (r *RedisClient) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]redis.Z, error) {
	entries, err := r.client.ZRevRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, wrap("zrevrange", err)
	}
	return entries, nil
}

// HGet reads one hash field; a missing field is an empty string, not
// an error.
func (r *RedisClient) HGet(ctx context.Context, key, field string) (string, error) {
	value, err := r.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", wrap("hget", err)
	}
	return value, nil
}

// EvalScript runs a Lua script; go-redis handles EVALSHA caching.
func (r *RedisClient) EvalScript(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	value, err := redis.NewScript(script).Run(ctx, r.client, keys, args...).Result()
	if err != nil {
		return nil, wrap("eval", err)
	}
	return value, nil
}

// Pipeline creates a command pipeline; execute it with
// ExecutePipeline.
func (r *RedisClient) Pipeline() redis.Pipeliner {
	return r.client.Pipeline()
}

// ExecutePipeline flushes a pipeline built with Pipeline.
func (r *RedisClient) ExecutePipeline(ctx context.Context, pipe redis.Pipeliner) error {
	if _, err := pipe.Exec(ctx); err != nil {
		return wrap("pipeline", err)
	}
	return nil
}
