package testutil

import (
	"time"

	"github.com/riftworks/taskqueue/internal/config"
	"github.com/riftworks/taskqueue/internal/models"
)

// TaskFactory builds models.Task values with sensible defaults for
// tests.
type TaskFactory struct{}

// NewTaskFactory creates a new task factory.
func NewTaskFactory() *TaskFactory {
	return &TaskFactory{}
}

// Build returns a PENDING task for taskName with default retry policy.
func (f *TaskFactory) Build(taskName string) *models.Task {
	task := &models.Task{
		TaskName:   taskName,
		Args:       models.JSONArray{},
		Kwargs:     models.JSONB{},
		Priority:   models.TaskPriorityNormal,
		Status:     models.TaskStatusPending,
		MaxRetries: models.DefaultMaxRetries,
		RetryDelay: 1,
		Timeout:    30,
		QueueName:  models.DefaultQueueName,
	}
	task.ID = models.NewID()
	return task
}

// BuildWithPriority returns a PENDING task at the given priority.
func (f *TaskFactory) BuildWithPriority(taskName string, priority models.TaskPriority) *models.Task {
	task := f.Build(taskName)
	task.Priority = priority
	return task
}

// QueueConfig returns the queue configuration tests run the engine
// with: short delays so retry scenarios finish quickly.
func QueueConfig() *config.QueueConfig {
	return &config.QueueConfig{
		DefaultQueueName:  models.DefaultQueueName,
		DefaultMaxRetries: models.DefaultMaxRetries,
		DefaultRetryDelay: time.Second,
		MaxBackoffDelay:   time.Hour,
		DeadLetterLimit:   1000,
	}
}

// WorkerConfig returns a worker pool configuration with fast polling
// for tests.
func WorkerConfig(workers int) config.WorkerConfig {
	return config.WorkerConfig{
		Queue:          models.DefaultQueueName,
		Workers:        workers,
		MaxTasks:       0,
		PollInterval:   20 * time.Millisecond,
		LogLevel:       "ERROR",
		WorkerIDPrefix: "test",
		ShutdownGrace:  2 * time.Second,
	}
}
