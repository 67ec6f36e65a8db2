package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riftworks/taskqueue/internal/config"
	"github.com/riftworks/taskqueue/internal/database"
	"github.com/riftworks/taskqueue/internal/models"
	"github.com/riftworks/taskqueue/internal/queue"
	"github.com/riftworks/taskqueue/internal/registry"
)

// TaskService is the producer-side orchestration layer between the
// HTTP surface and the queue engine: it applies submission defaults,
// funnels writes through the Queue Manager, and serves read paths from
// the Metadata Store.
type TaskService struct {
	manager  queue.Manager
	tasks    database.TaskRepository
	attempts database.AttemptRepository
	registry *registry.Registry
	config   *config.QueueConfig
	logger   *slog.Logger
}

// NewTaskService creates the producer-side task service. The registry
// may be nil on API hosts that do not load handlers; enqueue then
// skips its soft registration check.
func NewTaskService(manager queue.Manager, tasks database.TaskRepository, attempts database.AttemptRepository, reg *registry.Registry, cfg *config.QueueConfig, logger *slog.Logger) (*TaskService, error) {
	if manager == nil {
		return nil, fmt.Errorf("queue manager is required")
	}
	if tasks == nil {
		return nil, fmt.Errorf("task repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("queue config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskService{
		manager:  manager,
		tasks:    tasks,
		attempts: attempts,
		registry: reg,
		config:   cfg,
		logger:   logger,
	}, nil
}

// Enqueue validates a submission, applies defaults, and admits it to
// the queue. Registry membership is a soft check only: producer and
// worker hosts may load different registries, so an unknown name is
// logged and accepted.
func (s *TaskService) Enqueue(ctx context.Context, req *models.EnqueueTaskRequest) (*models.Task, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}
	if err := models.ValidateTaskName(req.TaskName); err != nil {
		return nil, err
	}

	priority, err := models.ParseTaskPriority(req.Priority)
	if err != nil {
		return nil, err
	}

	task := &models.Task{
		TaskName:   req.TaskName,
		Args:       req.Args,
		Kwargs:     req.Kwargs,
		Priority:   priority,
		MaxRetries: s.config.DefaultMaxRetries,
		RetryDelay: int(s.config.DefaultRetryDelay.Seconds()),
		Timeout:    models.DefaultTimeout,
		QueueName:  req.QueueName,
	}
	if task.Args == nil {
		task.Args = models.JSONArray{}
	}
	if task.Kwargs == nil {
		task.Kwargs = models.JSONB{}
	}
	if req.MaxRetries != nil {
		if *req.MaxRetries < 0 {
			return nil, fmt.Errorf("max_retries must be non-negative")
		}
		task.MaxRetries = *req.MaxRetries
	}
	if req.RetryDelay != nil {
		if *req.RetryDelay < 0 {
			return nil, fmt.Errorf("retry_delay must be non-negative")
		}
		task.RetryDelay = *req.RetryDelay
	}
	if req.Timeout != nil {
		if err := models.ValidateTimeout(*req.Timeout); err != nil {
			return nil, err
		}
		task.Timeout = *req.Timeout
	}
	if task.QueueName == "" {
		task.QueueName = s.config.DefaultQueueName
	}

	if s.registry != nil {
		if _, err := s.registry.Resolve(task.TaskName); err != nil {
			s.logger.Warn("enqueueing task with no locally registered handler",
				"task_name", task.TaskName, "queue", task.QueueName)
		}
	}

	if err := s.manager.Enqueue(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}
	return task, nil
}

// Get returns one Task Record by ID.
func (s *TaskService) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return s.tasks.GetByID(ctx, id)
}

// List returns Task Records, optionally filtered by status, with
// offset pagination.
func (s *TaskService) List(ctx context.Context, status *models.TaskStatus, limit, offset int) ([]*models.Task, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	if status != nil {
		if err := models.ValidateTaskStatus(*status); err != nil {
			return nil, 0, err
		}
		tasks, err := s.tasks.GetByStatus(ctx, *status, limit, offset)
		if err != nil {
			return nil, 0, err
		}
		total, err := s.tasks.CountByStatus(ctx, *status)
		if err != nil {
			return nil, 0, err
		}
		return tasks, total, nil
	}

	tasks, err := s.tasks.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.tasks.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// ListCursor returns Task Records with cursor pagination for large
// result sets.
func (s *TaskService) ListCursor(ctx context.Context, req database.CursorPaginationRequest) ([]*models.Task, database.CursorPaginationResponse, error) {
	return s.tasks.ListCursor(ctx, req)
}

// Attempts returns the per-attempt execution history for a task,
// newest first.
func (s *TaskService) Attempts(ctx context.Context, taskID uuid.UUID, limit, offset int) ([]*models.Attempt, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	if _, err := s.tasks.GetByID(ctx, taskID); err != nil {
		return nil, 0, err
	}

	attempts, err := s.attempts.GetByTaskID(ctx, taskID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.attempts.CountByTaskID(ctx, taskID)
	if err != nil {
		return nil, 0, err
	}
	return attempts, total, nil
}

// QueueStats returns the broker-side statistics for queueName.
func (s *TaskService) QueueStats(ctx context.Context, queueName string) (*queue.QueueStats, error) {
	if queueName == "" {
		queueName = s.config.DefaultQueueName
	}
	return s.manager.Stats(ctx, queueName)
}

// DeadLetter lists recently dead-lettered tasks for queueName.
func (s *TaskService) DeadLetter(ctx context.Context, queueName string, limit, offset int) ([]queue.DeadLetterEntry, error) {
	if queueName == "" {
		queueName = s.config.DefaultQueueName
	}
	if limit <= 0 || limit > s.config.DeadLetterLimit {
		limit = 50
	}
	return s.manager.DeadLetter(ctx, queueName, limit, offset)
}
