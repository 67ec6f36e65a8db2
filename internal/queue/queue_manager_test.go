package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftworks/taskqueue/internal/models"
	"github.com/riftworks/taskqueue/internal/queue"
	"github.com/riftworks/taskqueue/tests/testutil"
)

type managerFixture struct {
	manager  *queue.TaskQueueManager
	broker   *queue.MemoryBroker
	tasks    *testutil.MemoryTaskRepository
	attempts *testutil.MemoryAttemptRepository
	factory  *testutil.TaskFactory
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	tasks := testutil.NewMemoryTaskRepository()
	attempts := testutil.NewMemoryAttemptRepository()
	broker := queue.NewMemoryBroker()

	manager, err := queue.NewTaskQueueManager(tasks, attempts, broker, testutil.QueueConfig(), nil)
	require.NoError(t, err)

	return &managerFixture{
		manager:  manager,
		broker:   broker,
		tasks:    tasks,
		attempts: attempts,
		factory:  testutil.NewTaskFactory(),
	}
}

func TestEnqueueInsertsRecordAndPushesPending(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	task := f.factory.Build("echo")
	require.NoError(t, f.manager.Enqueue(ctx, task))

	stored, err := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)
	assert.False(t, stored.CreatedAt.IsZero())

	stats, err := f.manager.Stats(ctx, task.QueueName)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.PendingCount)
}

func TestEnqueueRejectsEmptyName(t *testing.T) {
	f := newManagerFixture(t)

	task := f.factory.Build("")
	assert.Error(t, f.manager.Enqueue(context.Background(), task))
}

func TestClaimNextTransitionsToProcessing(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	task := f.factory.Build("echo")
	require.NoError(t, f.manager.Enqueue(ctx, task))

	claimed, err := f.manager.ClaimNext(ctx, task.QueueName, "w1")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, task.ID, claimed.ID)
	assert.Equal(t, models.TaskStatusProcessing, claimed.Status)
	require.NotNil(t, claimed.StartedAt)

	stats, err := f.manager.Stats(ctx, task.QueueName)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.PendingCount)
	assert.Equal(t, int64(1), stats.InflightCount)
}

func TestClaimNextEmptyQueueReturnsNil(t *testing.T) {
	f := newManagerFixture(t)

	claimed, err := f.manager.ClaimNext(context.Background(), "default", "w1")
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestClaimOrderAcrossPriorities(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	h1 := f.factory.BuildWithPriority("echo", models.TaskPriorityHigh)
	n1 := f.factory.BuildWithPriority("echo", models.TaskPriorityNormal)
	h2 := f.factory.BuildWithPriority("echo", models.TaskPriorityHigh)
	l1 := f.factory.BuildWithPriority("echo", models.TaskPriorityLow)

	for _, task := range []*models.Task{n1, h1, l1, h2} {
		require.NoError(t, f.manager.Enqueue(ctx, task))
	}

	expected := []string{h1.ID.String(), h2.ID.String(), n1.ID.String(), l1.ID.String()}
	for _, want := range expected {
		claimed, err := f.manager.ClaimNext(ctx, "default", "w1")
		require.NoError(t, err)
		require.NotNil(t, claimed)
		assert.Equal(t, want, claimed.ID.String())
	}
}

func TestCompleteStoresResultAndClearsBroker(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	task := f.factory.Build("echo")
	require.NoError(t, f.manager.Enqueue(ctx, task))
	claimed, err := f.manager.ClaimNext(ctx, task.QueueName, "w1")
	require.NoError(t, err)

	result, err := models.NewRawJSON(5)
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, f.manager.Complete(ctx, claimed.ID, result, queue.AttemptInfo{
		WorkerID: "w1", StartedAt: now.Add(-time.Second), CompletedAt: now, ExecutionTimeMs: 1000,
	}))

	stored, err := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSuccess, stored.Status)
	assert.Equal(t, "5", string(stored.Result.Raw))
	require.NotNil(t, stored.CompletedAt)
	assert.False(t, stored.CompletedAt.Before(*stored.StartedAt))

	stats, err := f.manager.Stats(ctx, task.QueueName)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.InflightCount)

	attempt, err := f.attempts.GetLatestByTaskID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptOutcomeSuccess, attempt.Outcome)
	assert.Equal(t, 1, attempt.AttemptNumber)
	assert.Equal(t, "w1", attempt.WorkerID)
}

func TestFailWithRetriesRemainingSchedulesRetry(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	task := f.factory.Build("echo")
	task.MaxRetries = 2
	task.RetryDelay = 1
	require.NoError(t, f.manager.Enqueue(ctx, task))
	claimed, err := f.manager.ClaimNext(ctx, task.QueueName, "w1")
	require.NoError(t, err)

	before := time.Now()
	require.NoError(t, f.manager.Fail(ctx, claimed.ID, "boom", queue.AttemptInfo{WorkerID: "w1"}))

	stored, err := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusRetry, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "boom", *stored.ErrorMessage)
	require.NotNil(t, stored.NextRetryAt)
	assert.True(t, stored.NextRetryAt.After(before))

	stats, err := f.manager.Stats(ctx, task.QueueName)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.DelayedCount)
	assert.Equal(t, int64(0), stats.InflightCount)
}

func TestFailExhaustedRetriesBecomesFailed(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	task := f.factory.Build("echo")
	task.MaxRetries = 0
	require.NoError(t, f.manager.Enqueue(ctx, task))
	claimed, err := f.manager.ClaimNext(ctx, task.QueueName, "w1")
	require.NoError(t, err)

	require.NoError(t, f.manager.Fail(ctx, claimed.ID, "boom", queue.AttemptInfo{WorkerID: "w1"}))

	stored, err := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)
	require.NotNil(t, stored.CompletedAt)

	// terminal tasks leave no broker entries except the dead-letter
	// mirror
	stats, err := f.manager.Stats(ctx, task.QueueName)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.PendingCount)
	assert.Equal(t, int64(0), stats.DelayedCount)
	assert.Equal(t, int64(0), stats.InflightCount)

	dead, err := f.manager.DeadLetter(ctx, task.QueueName, 10, 0)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, task.ID, dead[0].TaskID)
	assert.Equal(t, "boom", dead[0].ErrorMessage)
}

func TestFailPermanentlyConsumesRetryBudget(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	task := f.factory.Build("nope")
	task.MaxRetries = 3
	require.NoError(t, f.manager.Enqueue(ctx, task))
	claimed, err := f.manager.ClaimNext(ctx, task.QueueName, "w1")
	require.NoError(t, err)

	require.NoError(t, f.manager.FailPermanently(ctx, claimed.ID, "unknown task", queue.AttemptInfo{WorkerID: "w1"}))

	stored, err := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, stored.Status)
	assert.Equal(t, task.MaxRetries, stored.RetryCount)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "unknown task")
}

func TestRetryBackoffMonotonicity(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	task := f.factory.Build("echo")
	task.MaxRetries = 3
	task.RetryDelay = 2
	require.NoError(t, f.manager.Enqueue(ctx, task))

	var gaps []time.Duration
	for i := 0; i < 3; i++ {
		// promote whatever is delayed so the next claim succeeds
		if i > 0 {
			stored, err := f.tasks.GetByID(ctx, task.ID)
			require.NoError(t, err)
			promoteAt := stored.NextRetryAt.Add(time.Second)
			promoted, err := f.broker.PromoteDelayed(ctx, task.QueueName, promoteAt)
			require.NoError(t, err)
			require.Len(t, promoted, 1)
			stored.Status = models.TaskStatusPending
			stored.NextRetryAt = nil
			require.NoError(t, f.tasks.Update(ctx, stored))
		}

		claimed, err := f.manager.ClaimNext(ctx, task.QueueName, "w1")
		require.NoError(t, err)
		require.NotNil(t, claimed)

		before := time.Now()
		require.NoError(t, f.manager.Fail(ctx, claimed.ID, "boom", queue.AttemptInfo{WorkerID: "w1"}))

		stored, err := f.tasks.GetByID(ctx, task.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.NextRetryAt)
		gaps = append(gaps, stored.NextRetryAt.Sub(before))
	}

	// successive next_retry_at gaps are non-decreasing (2s, 4s, 8s)
	for i := 1; i < len(gaps); i++ {
		assert.GreaterOrEqual(t, gaps[i], gaps[i-1])
	}
}

func TestPromoteDelayedFlipsStatusBackToPending(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	task := f.factory.Build("echo")
	task.MaxRetries = 2
	task.RetryDelay = 0 // immediate re-admission once promoted
	require.NoError(t, f.manager.Enqueue(ctx, task))
	claimed, err := f.manager.ClaimNext(ctx, task.QueueName, "w1")
	require.NoError(t, err)
	require.NoError(t, f.manager.Fail(ctx, claimed.ID, "boom", queue.AttemptInfo{WorkerID: "w1"}))

	// wait out the 1s minimum backoff
	time.Sleep(1100 * time.Millisecond)

	require.NoError(t, f.manager.PromoteDelayed(ctx, task.QueueName))

	stored, err := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, stored.Status)
	assert.Nil(t, stored.NextRetryAt)

	// idempotent under a second sweep
	require.NoError(t, f.manager.PromoteDelayed(ctx, task.QueueName))
	stats, err := f.manager.Stats(ctx, task.QueueName)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.PendingCount)
	assert.Equal(t, int64(0), stats.DelayedCount)
}

func TestReclaimStaleRoutesThroughFail(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	task := f.factory.Build("echo")
	task.MaxRetries = 2
	require.NoError(t, f.manager.Enqueue(ctx, task))

	// simulate a crashed worker: claim normally, leaving the metadata
	// row in PROCESSING
	claimed, err := f.manager.ClaimNext(ctx, task.QueueName, "w1")
	require.NoError(t, err)
	require.NotNil(t, claimed)

	// expire the inflight marker by reclaiming with a far-future now
	entries, err := f.broker.ReclaimStale(ctx, task.QueueName, time.Now().Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, f.manager.Fail(ctx, entries[0].TaskID, "worker claim expired before completion", queue.AttemptInfo{WorkerID: entries[0].WorkerID}))

	stored, err := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusRetry, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
}
