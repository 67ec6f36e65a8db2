package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftworks/taskqueue/internal/models"
	"github.com/riftworks/taskqueue/internal/queue"
	"github.com/riftworks/taskqueue/internal/services"
	"github.com/riftworks/taskqueue/pkg/logger"
	"github.com/riftworks/taskqueue/tests/testutil"
)

type taskHandlerFixture struct {
	router  *gin.Engine
	service *services.TaskService
	tasks   *testutil.MemoryTaskRepository
	manager *queue.TaskQueueManager
}

func newTaskHandlerFixture(t *testing.T) *taskHandlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tasks := testutil.NewMemoryTaskRepository()
	attempts := testutil.NewMemoryAttemptRepository()
	broker := queue.NewMemoryBroker()
	cfg := testutil.QueueConfig()

	manager, err := queue.NewTaskQueueManager(tasks, attempts, broker, cfg, nil)
	require.NoError(t, err)

	service, err := services.NewTaskService(manager, tasks, attempts, nil, cfg, nil)
	require.NoError(t, err)

	log := logger.NewWithWriter("error", "json", &bytes.Buffer{})
	taskHandler := NewTaskHandler(service, log.Logger)
	queueHandler := NewQueueHandler(service, log.Logger)

	router := gin.New()
	router.POST("/tasks", taskHandler.Create)
	router.GET("/tasks", taskHandler.List)
	router.GET("/tasks/:id", taskHandler.Get)
	router.GET("/tasks/:id/attempts", taskHandler.Attempts)
	router.GET("/queues/:name/stats", queueHandler.Stats)
	router.GET("/queues/:name/dead-letter", queueHandler.DeadLetter)

	return &taskHandlerFixture{router: router, service: service, tasks: tasks, manager: manager}
}

func (f *taskHandlerFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestTaskHandler_Create(t *testing.T) {
	f := newTaskHandlerFixture(t)

	w := f.do("POST", "/tasks", `{"task_name":"send_email","args":["a@example.com"],"priority":"high","max_retries":1}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Success bool                `json:"success"`
		Data    models.TaskResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "send_email", resp.Data.TaskName)
	assert.Equal(t, models.TaskPriorityHigh, resp.Data.Priority)
	assert.Equal(t, models.TaskStatusPending, resp.Data.Status)
	assert.Equal(t, 1, resp.Data.MaxRetries)
	assert.NotEmpty(t, resp.Data.ID)
}

func TestTaskHandler_CreateRejectsBadPayload(t *testing.T) {
	f := newTaskHandlerFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing task name", `{"args":[1]}`},
		{"bad priority", `{"task_name":"x","priority":"urgent"}`},
		{"malformed json", `{"task_name":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do("POST", "/tasks", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestTaskHandler_GetAndNotFound(t *testing.T) {
	f := newTaskHandlerFixture(t)

	created := f.do("POST", "/tasks", `{"task_name":"send_email"}`)
	require.Equal(t, http.StatusCreated, created.Code)

	var resp struct {
		Data models.TaskResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &resp))

	w := f.do("GET", "/tasks/"+resp.Data.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do("GET", "/tasks/"+models.NewID().String(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do("GET", "/tasks/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTaskHandler_ListWithStatusFilter(t *testing.T) {
	f := newTaskHandlerFixture(t)

	for i := 0; i < 3; i++ {
		w := f.do("POST", "/tasks", `{"task_name":"send_email"}`)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := f.do("GET", "/tasks?status=PENDING", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data models.TaskListResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data.Tasks, 3)
	assert.Equal(t, int64(3), resp.Data.Total)

	w = f.do("GET", "/tasks?status=SUCCESS", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Data.Tasks)

	w = f.do("GET", "/tasks?status=BOGUS", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueueHandler_Stats(t *testing.T) {
	f := newTaskHandlerFixture(t)

	w := f.do("POST", "/tasks", `{"task_name":"send_email"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do("GET", "/queues/default/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data queue.QueueStats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "default", resp.Data.Name)
	assert.Equal(t, int64(1), resp.Data.PendingCount)
}

func TestQueueHandler_DeadLetter(t *testing.T) {
	f := newTaskHandlerFixture(t)

	w := f.do("GET", "/queues/default/dead-letter", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "success")
}
