// Package integration exercises the whole queue engine in one
// process: registry, executor, memory broker, metadata fakes, queue
// manager, and a real worker pool.
package integration

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftworks/taskqueue/internal/executor"
	"github.com/riftworks/taskqueue/internal/models"
	"github.com/riftworks/taskqueue/internal/queue"
	"github.com/riftworks/taskqueue/internal/registry"
	"github.com/riftworks/taskqueue/internal/worker"
	"github.com/riftworks/taskqueue/tests/testutil"
)

type engine struct {
	registry *registry.Registry
	broker   *queue.MemoryBroker
	tasks    *testutil.MemoryTaskRepository
	attempts *testutil.MemoryAttemptRepository
	manager  *queue.TaskQueueManager
	pool     *worker.Pool
	factory  *testutil.TaskFactory
}

// startEngine wires the full engine with a live worker pool and stops
// it on test cleanup.
func startEngine(t *testing.T, reg *registry.Registry, workers int) *engine {
	t.Helper()

	broker := queue.NewMemoryBroker()
	tasks := testutil.NewMemoryTaskRepository()
	attempts := testutil.NewMemoryAttemptRepository()

	manager, err := queue.NewTaskQueueManager(tasks, attempts, broker, testutil.QueueConfig(), nil)
	require.NoError(t, err)

	execCfg := executor.DefaultConfig()
	execCfg.CancellationGrace = 100 * time.Millisecond
	taskExecutor, err := executor.NewRegistryExecutor(reg, execCfg, nil)
	require.NoError(t, err)

	pool, err := worker.NewPool(manager, taskExecutor, testutil.WorkerConfig(workers), nil)
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))
	t.Cleanup(func() { _ = pool.Stop(context.Background()) })

	return &engine{
		registry: reg,
		broker:   broker,
		tasks:    tasks,
		attempts: attempts,
		manager:  manager,
		pool:     pool,
		factory:  testutil.NewTaskFactory(),
	}
}

func (e *engine) waitForStatus(t *testing.T, task *models.Task, status models.TaskStatus, within time.Duration) *models.Task {
	t.Helper()
	var latest *models.Task
	require.Eventually(t, func() bool {
		stored, err := e.tasks.GetByID(context.Background(), task.ID)
		if err != nil {
			return false
		}
		latest = stored
		return stored.Status == status
	}, within, 20*time.Millisecond, "task %s never reached %s", task.ID, status)
	return latest
}

func TestHappyPath(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("add", func(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		a := args[0].(float64)
		b := args[1].(float64)
		return a + b, nil
	}, registry.Options{}))

	e := startEngine(t, reg, 1)

	task := e.factory.Build("add")
	task.Args = models.JSONArray{float64(2), float64(3)}
	task.MaxRetries = 0
	require.NoError(t, e.manager.Enqueue(context.Background(), task))

	final := e.waitForStatus(t, task, models.TaskStatusSuccess, 5*time.Second)

	var result float64
	require.NoError(t, json.Unmarshal(final.Result.Raw, &result))
	assert.Equal(t, float64(5), result)
	assert.Equal(t, 0, final.RetryCount)
	require.NotNil(t, final.StartedAt)
	require.NotNil(t, final.CompletedAt)
	assert.False(t, final.CompletedAt.Before(*final.StartedAt))
}

func TestRetryThenSucceed(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	reg := registry.New()
	require.NoError(t, reg.Register("flaky", func(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return nil, errors.New("first attempt fails")
		}
		return "recovered", nil
	}, registry.Options{}))

	e := startEngine(t, reg, 1)

	task := e.factory.Build("flaky")
	task.MaxRetries = 2
	task.RetryDelay = 1
	require.NoError(t, e.manager.Enqueue(context.Background(), task))

	final := e.waitForStatus(t, task, models.TaskStatusSuccess, 10*time.Second)
	assert.Equal(t, 1, final.RetryCount)
	require.NotNil(t, final.ErrorMessage)
	assert.Equal(t, "first attempt fails", *final.ErrorMessage)

	// the attempt trail shows the failed first attempt and the
	// successful second
	attempts, err := e.attempts.GetByTaskID(context.Background(), task.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, models.AttemptOutcomeSuccess, attempts[0].Outcome)
	assert.Equal(t, models.AttemptOutcomeFailed, attempts[1].Outcome)
}

func TestExhaustRetries(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("always_fail", func(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		return nil, errors.New("boom")
	}, registry.Options{}))

	e := startEngine(t, reg, 1)

	task := e.factory.Build("always_fail")
	task.MaxRetries = 2
	task.RetryDelay = 1
	require.NoError(t, e.manager.Enqueue(context.Background(), task))

	final := e.waitForStatus(t, task, models.TaskStatusFailed, 20*time.Second)
	assert.Equal(t, 2, final.RetryCount)
	require.NotNil(t, final.ErrorMessage)
	assert.Equal(t, "boom", *final.ErrorMessage)

	// terminal task leaves only the dead-letter mirror behind
	dead, err := e.manager.DeadLetter(context.Background(), task.QueueName, 10, 0)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, task.ID, dead[0].TaskID)
}

func TestPriorityPreemption(t *testing.T) {
	var mu sync.Mutex
	var order []string

	reg := registry.New()
	require.NoError(t, reg.Register("record", func(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, args[0].(string))
		return nil, nil
	}, registry.Options{}))

	broker := queue.NewMemoryBroker()
	tasks := testutil.NewMemoryTaskRepository()
	attempts := testutil.NewMemoryAttemptRepository()
	manager, err := queue.NewTaskQueueManager(tasks, attempts, broker, testutil.QueueConfig(), nil)
	require.NoError(t, err)

	factory := testutil.NewTaskFactory()

	// enqueue 5 normals then 1 high before any worker starts
	var all []*models.Task
	for i := 0; i < 5; i++ {
		task := factory.BuildWithPriority("record", models.TaskPriorityNormal)
		task.Args = models.JSONArray{"normal"}
		require.NoError(t, manager.Enqueue(context.Background(), task))
		all = append(all, task)
	}
	high := factory.BuildWithPriority("record", models.TaskPriorityHigh)
	high.Args = models.JSONArray{"high"}
	require.NoError(t, manager.Enqueue(context.Background(), high))
	all = append(all, high)

	execCfg := executor.DefaultConfig()
	taskExecutor, err := executor.NewRegistryExecutor(reg, execCfg, nil)
	require.NoError(t, err)
	pool, err := worker.NewPool(manager, taskExecutor, testutil.WorkerConfig(1), nil)
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))
	t.Cleanup(func() { _ = pool.Stop(context.Background()) })

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == len(all)
	}, 10*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "high", order[0], "the high task is claimed before any queued normal")
}

func TestUnknownTask(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("known", func(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		return nil, nil
	}, registry.Options{}))

	e := startEngine(t, reg, 1)

	task := e.factory.Build("nope")
	task.MaxRetries = 3
	require.NoError(t, e.manager.Enqueue(context.Background(), task))

	final := e.waitForStatus(t, task, models.TaskStatusFailed, 5*time.Second)
	require.NotNil(t, final.ErrorMessage)
	assert.Contains(t, *final.ErrorMessage, "unknown task")
	// non-retryable: the retry budget is consumed in one transition
	assert.Equal(t, final.MaxRetries, final.RetryCount)
}

func TestCrashRecovery(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("work", func(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		return "done", nil
	}, registry.Options{}))

	broker := queue.NewMemoryBroker()
	tasks := testutil.NewMemoryTaskRepository()
	attempts := testutil.NewMemoryAttemptRepository()
	manager, err := queue.NewTaskQueueManager(tasks, attempts, broker, testutil.QueueConfig(), nil)
	require.NoError(t, err)
	factory := testutil.NewTaskFactory()

	task := factory.Build("work")
	task.MaxRetries = 2
	task.RetryDelay = 1
	require.NoError(t, manager.Enqueue(context.Background(), task))

	// Simulate worker A claiming the task and dying: pop the broker
	// entry with an already-expired claim deadline and flip the
	// metadata row to PROCESSING, exactly the state a crash leaves.
	claimedID, _, _, found, err := broker.PopPending(context.Background(), task.QueueName, "crashed-worker", time.Now().Add(-time.Second))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, task.ID, claimedID)

	stored, err := tasks.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	now := time.Now()
	stored.Status = models.TaskStatusProcessing
	stored.StartedAt = &now
	require.NoError(t, tasks.Update(context.Background(), stored))

	// Start the pool: its reclaim sweep routes the expired claim
	// through fail, the promote sweep re-admits it, and a live worker
	// completes it.
	execCfg := executor.DefaultConfig()
	taskExecutor, err := executor.NewRegistryExecutor(reg, execCfg, nil)
	require.NoError(t, err)
	pool, err := worker.NewPool(manager, taskExecutor, testutil.WorkerConfig(1), nil)
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))
	t.Cleanup(func() { _ = pool.Stop(context.Background()) })

	var final *models.Task
	require.Eventually(t, func() bool {
		stored, err := tasks.GetByID(context.Background(), task.ID)
		if err != nil {
			return false
		}
		final = stored
		return stored.Status == models.TaskStatusSuccess
	}, 15*time.Second, 20*time.Millisecond)

	// the crashed attempt consumed one retry
	assert.Equal(t, 1, final.RetryCount)
	require.NotNil(t, final.Result.Raw)
}
