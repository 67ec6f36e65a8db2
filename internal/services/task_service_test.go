package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftworks/taskqueue/internal/models"
	"github.com/riftworks/taskqueue/internal/queue"
	"github.com/riftworks/taskqueue/internal/registry"
	"github.com/riftworks/taskqueue/tests/testutil"
)

func newTestService(t *testing.T) (*TaskService, *testutil.MemoryTaskRepository) {
	t.Helper()

	tasks := testutil.NewMemoryTaskRepository()
	attempts := testutil.NewMemoryAttemptRepository()
	broker := queue.NewMemoryBroker()
	cfg := testutil.QueueConfig()

	manager, err := queue.NewTaskQueueManager(tasks, attempts, broker, cfg, nil)
	require.NoError(t, err)

	reg := registry.New()
	require.NoError(t, reg.Register("echo", func(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		return args, nil
	}, registry.Options{}))

	service, err := NewTaskService(manager, tasks, attempts, reg, cfg, nil)
	require.NoError(t, err)
	return service, tasks
}

func TestEnqueueAppliesDefaults(t *testing.T) {
	service, _ := newTestService(t)

	task, err := service.Enqueue(context.Background(), &models.EnqueueTaskRequest{TaskName: "echo"})
	require.NoError(t, err)

	assert.Equal(t, models.TaskStatusPending, task.Status)
	assert.Equal(t, models.TaskPriorityNormal, task.Priority)
	assert.Equal(t, models.DefaultMaxRetries, task.MaxRetries)
	assert.Equal(t, models.DefaultTimeout, task.Timeout)
	assert.Equal(t, models.DefaultQueueName, task.QueueName)
	assert.NotNil(t, task.Args)
	assert.NotNil(t, task.Kwargs)
}

func TestEnqueueAcceptsStringPriority(t *testing.T) {
	service, _ := newTestService(t)

	task, err := service.Enqueue(context.Background(), &models.EnqueueTaskRequest{
		TaskName: "echo",
		Priority: "high",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TaskPriorityHigh, task.Priority)
}

func TestEnqueueRejectsInvalidInput(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	negative := -1
	zero := 0

	tests := []struct {
		name string
		req  *models.EnqueueTaskRequest
	}{
		{"nil request", nil},
		{"missing task name", &models.EnqueueTaskRequest{}},
		{"bad priority", &models.EnqueueTaskRequest{TaskName: "echo", Priority: "urgent"}},
		{"negative max retries", &models.EnqueueTaskRequest{TaskName: "echo", MaxRetries: &negative}},
		{"negative retry delay", &models.EnqueueTaskRequest{TaskName: "echo", RetryDelay: &negative}},
		{"zero timeout", &models.EnqueueTaskRequest{TaskName: "echo", Timeout: &zero}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Enqueue(ctx, tt.req)
			assert.Error(t, err)
		})
	}
}

func TestEnqueueUnregisteredNameIsAccepted(t *testing.T) {
	// registries may differ between API host and worker host, so an
	// unknown name passes the soft check
	service, _ := newTestService(t)

	task, err := service.Enqueue(context.Background(), &models.EnqueueTaskRequest{TaskName: "only_on_workers"})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, task.Status)
}

func TestListFiltersByStatus(t *testing.T) {
	service, tasks := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := service.Enqueue(ctx, &models.EnqueueTaskRequest{TaskName: "echo"})
		require.NoError(t, err)
	}

	// flip one task to SUCCESS directly in the store
	all, err := tasks.List(ctx, 10, 0)
	require.NoError(t, err)
	done := all[0]
	done.Status = models.TaskStatusSuccess
	require.NoError(t, tasks.Update(ctx, done))

	status := models.TaskStatusPending
	pending, total, err := service.List(ctx, &status, 10, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
	assert.Equal(t, int64(2), total)

	unfiltered, total, err := service.List(ctx, nil, 10, 0)
	require.NoError(t, err)
	assert.Len(t, unfiltered, 3)
	assert.Equal(t, int64(3), total)
}

func TestListRejectsInvalidStatus(t *testing.T) {
	service, _ := newTestService(t)

	bad := models.TaskStatus("RUNNING")
	_, _, err := service.List(context.Background(), &bad, 10, 0)
	assert.Error(t, err)
}

func TestAttemptsRequiresExistingTask(t *testing.T) {
	service, _ := newTestService(t)

	_, _, err := service.Attempts(context.Background(), models.NewID(), 10, 0)
	assert.Error(t, err)
}

func TestQueueStatsDefaultsQueueName(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.Enqueue(ctx, &models.EnqueueTaskRequest{TaskName: "echo"})
	require.NoError(t, err)

	stats, err := service.QueueStats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultQueueName, stats.Name)
	assert.Equal(t, int64(1), stats.PendingCount)
}
