package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riftworks/taskqueue/internal/config"
	"github.com/riftworks/taskqueue/internal/executor"
	"github.com/riftworks/taskqueue/internal/models"
	"github.com/riftworks/taskqueue/internal/queue"
)

// reclaimIntervalMultiplier spaces reclaim sweeps relative to the
// poll interval.
const reclaimIntervalMultiplier = 5

// Pool is the worker pool supervisor: it launches N workers
// bound to one queue, owns the queue's two maintenance loops, and
// coordinates graceful shutdown.
type Pool struct {
	queueName string
	manager   queue.Manager
	executor  executor.TaskExecutor
	config    config.WorkerConfig
	logger    *slog.Logger

	mu        sync.Mutex
	workers   []*TaskWorker
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time

	promoteSweeps atomic.Int64
	reclaimSweeps atomic.Int64

	// fatal receives the first unrecoverable worker error; buffered so
	// a dying worker never blocks on it.
	fatal chan error
}

// NewPool creates a supervisor for cfg.Workers workers on cfg.Queue.
func NewPool(manager queue.Manager, exec executor.TaskExecutor, cfg config.WorkerConfig, logger *slog.Logger) (*Pool, error) {
	if manager == nil {
		return nil, fmt.Errorf("queue manager is required")
	}
	if exec == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Queue == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("worker count must be >= 1")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		queueName: cfg.Queue,
		manager:   manager,
		executor:  exec,
		config:    cfg,
		logger:    logger.With("queue", cfg.Queue),
		fatal:     make(chan error, 1),
	}, nil
}

// workerID builds the distinct per-worker identity "{host}:{pid}:{ordinal}".
func workerID(ordinal int) string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	return fmt.Sprintf("%s:%d:%d", host, os.Getpid(), ordinal)
}

// Start launches the workers and the maintenance loops. It returns
// immediately; use Wait or Fatal to observe the pool's fate.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("pool is already running")
	}

	poolCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.startedAt = time.Now()
	p.workers = make([]*TaskWorker, 0, p.config.Workers)

	for i := 0; i < p.config.Workers; i++ {
		w, err := NewTaskWorker(workerID(i), p.queueName, p.manager, p.executor, p.config.PollInterval, p.config.MaxTasks, p.logger)
		if err != nil {
			cancel()
			return fmt.Errorf("failed to create worker %d: %w", i, err)
		}
		p.workers = append(p.workers, w)
	}

	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *TaskWorker) {
			defer p.wg.Done()
			if err := w.Run(poolCtx); err != nil {
				select {
				case p.fatal <- err:
				default:
				}
				cancel() // one dead worker takes the pool down
			}
		}(w)
	}

	p.wg.Add(2)
	go p.promoteLoop(poolCtx)
	go p.reclaimLoop(poolCtx)

	p.running = true
	p.logger.Info("worker pool started",
		"workers", p.config.Workers,
		"poll_interval", p.config.PollInterval,
		"max_tasks", p.config.MaxTasks)
	return nil
}

// promoteLoop runs promote_delayed every poll interval, moving ready
// RETRY tasks back into the pending list.
func (p *Pool) promoteLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.manager.PromoteDelayed(ctx, p.queueName); err != nil {
				p.logger.Warn("promote sweep failed", "error", err)
				continue
			}
			p.promoteSweeps.Add(1)
		}
	}
}

// reclaimLoop runs reclaim_stale every 5x poll interval, routing
// expired claims of crashed workers back through the retry path.
func (p *Pool) reclaimLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(reclaimIntervalMultiplier * p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.manager.ReclaimStale(ctx, p.queueName); err != nil {
				p.logger.Warn("reclaim sweep failed", "error", err)
				continue
			}
			p.reclaimSweeps.Add(1)
		}
	}
}

// Stop asks every worker to stop issuing new claims and waits for
// in-flight attempts to finish. The drain budget must cover the
// longest possible attempt (max task timeout + grace), which is what
// the configured ShutdownGrace is derived from; only an attempt
// running past even that is abandoned to a future reclaim sweep.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	p.logger.Info("worker pool stopping")
	cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	grace := p.config.ShutdownGrace
	if grace <= 0 {
		// fallback covers the engine-wide attempt ceiling plus slack
		grace = time.Duration(models.MaxTimeoutSeconds)*time.Second + 30*time.Second
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		p.logger.Info("worker pool stopped cleanly")
		return nil
	case <-timer.C:
		p.logger.Warn("shutdown grace elapsed with attempts still in flight; leaving them to the reclaim sweep")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every worker and maintenance loop has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Fatal returns a channel that receives the first unrecoverable
// worker error, if any occurs.
func (p *Pool) Fatal() <-chan error {
	return p.fatal
}

// IsRunning reports whether the pool has been started and not stopped.
func (p *Pool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stats aggregates the pool's worker counters and sweep progress.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	workers := make([]*TaskWorker, len(p.workers))
	copy(workers, p.workers)
	startedAt := p.startedAt
	p.mu.Unlock()

	stats := PoolStats{
		Queue:         p.queueName,
		WorkerCount:   len(workers),
		PromoteSweeps: p.promoteSweeps.Load(),
		ReclaimSweeps: p.reclaimSweeps.Load(),
		StartedAt:     startedAt,
	}
	for _, w := range workers {
		ws := w.Stats()
		stats.Workers = append(stats.Workers, ws)
		stats.TasksSucceeded += ws.TasksSucceeded
		stats.TasksFailed += ws.TasksFailed
	}
	return stats
}
