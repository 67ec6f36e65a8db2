package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/riftworks/taskqueue/internal/api/middleware"
	"github.com/riftworks/taskqueue/internal/database"
	"github.com/riftworks/taskqueue/internal/models"
	"github.com/riftworks/taskqueue/internal/services"
)

// TaskHandler serves the producer HTTP surface for task submission and
// listing.
type TaskHandler struct {
	tasks  *services.TaskService
	logger *slog.Logger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(tasks *services.TaskService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		tasks:  tasks,
		logger: logger,
	}
}

// Create handles task submission
//
//	@Summary		Submit a new task
//	@Description	Validates the payload and admits a new task to the queue in the PENDING state
//	@Tags			Tasks
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		models.EnqueueTaskRequest	true	"Task submission payload"
//	@Success		201		{object}	models.TaskResponse			"Task enqueued successfully"
//	@Failure		400		{object}	models.ErrorResponse		"Invalid request format or validation error"
//	@Failure		401		{object}	models.ErrorResponse		"Unauthorized"
//	@Failure		429		{object}	models.ErrorResponse		"Rate limit exceeded"
//	@Router			/tasks [post]
func (h *TaskHandler) Create(c *gin.Context) {
	// Get validated request from middleware
	validatedBody, exists := c.Get("validated_body")
	if !exists {
		// Fallback to manual binding if middleware wasn't used
		var req models.EnqueueTaskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Warn("invalid task submission", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request format",
				"details": err.Error(),
			})
			return
		}
		validatedBody = &req
	}

	req := validatedBody.(*models.EnqueueTaskRequest)

	// A submission that names no queue routes to the authenticated
	// producer's default queue.
	if req.QueueName == "" {
		if producer := middleware.GetProducerFromContext(c); producer != nil {
			req.QueueName = producer.DefaultQueue
		}
	}

	task, err := h.tasks.Enqueue(c.Request.Context(), req)
	if err != nil {
		h.logger.Warn("task submission rejected", "task_name", req.TaskName, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid task submission",
			"details": err.Error(),
		})
		return
	}

	h.logger.Info("task enqueued",
		"task_id", task.ID,
		"task_name", task.TaskName,
		"queue", task.QueueName,
		"priority", task.Priority)

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    task.ToResponse(),
	})
}

// Get handles fetching one task by ID
//
//	@Summary		Get a task
//	@Description	Returns the full Task Record, including result or error state
//	@Tags			Tasks
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string					true	"Task ID"
//	@Success		200	{object}	models.TaskResponse		"Task retrieved successfully"
//	@Failure		400	{object}	models.ErrorResponse	"Invalid task ID"
//	@Failure		401	{object}	models.ErrorResponse	"Unauthorized"
//	@Failure		404	{object}	models.ErrorResponse	"Task not found"
//	@Router			/tasks/{id} [get]
func (h *TaskHandler) Get(c *gin.Context) {
	taskID, err := models.ValidateID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid task ID"})
		return
	}

	task, err := h.tasks.Get(c.Request.Context(), taskID)
	if err != nil {
		if errors.Is(err, database.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
			return
		}
		h.logger.Error("failed to load task", "task_id", taskID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve task"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    task.ToResponse(),
	})
}

// List handles task listing with optional status filter
//
//	@Summary		List tasks
//	@Description	Returns Task Records, optionally filtered by lifecycle status, newest first
//	@Tags			Tasks
//	@Produce		json
//	@Security		BearerAuth
//	@Param			status	query		string					false	"Status filter"	Enums(PENDING, PROCESSING, SUCCESS, FAILED, RETRY)
//	@Param			limit	query		int						false	"Page size (max 100)"
//	@Param			offset	query		int						false	"Page offset"
//	@Param			cursor	query		string					false	"Opaque pagination cursor (replaces offset)"
//	@Success		200		{object}	models.TaskListResponse	"Tasks retrieved successfully"
//	@Failure		400		{object}	models.ErrorResponse	"Invalid query parameters"
//	@Failure		401		{object}	models.ErrorResponse	"Unauthorized"
//	@Router			/tasks [get]
func (h *TaskHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	if cursor := c.Query("cursor"); cursor != "" {
		h.listCursor(c, cursor, limit)
		return
	}

	var status *models.TaskStatus
	if raw := c.Query("status"); raw != "" {
		s := models.TaskStatus(raw)
		if err := models.ValidateTaskStatus(s); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		status = &s
	}

	tasks, total, err := h.tasks.List(c.Request.Context(), status, limit, offset)
	if err != nil {
		h.logger.Error("failed to list tasks", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list tasks"})
		return
	}

	responses := make([]models.TaskResponse, len(tasks))
	for i, task := range tasks {
		responses[i] = task.ToResponse()
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": models.TaskListResponse{
			Tasks:  responses,
			Total:  total,
			Limit:  limit,
			Offset: offset,
		},
	})
}

// listCursor serves cursor-paginated listing for large result sets.
func (h *TaskHandler) listCursor(c *gin.Context, cursor string, limit int) {
	req := database.CursorPaginationRequest{
		Limit:     limit,
		Cursor:    &cursor,
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}

	tasks, pagination, err := h.tasks.ListCursor(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, database.ErrInvalidCursor) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cursor"})
			return
		}
		h.logger.Error("failed to list tasks by cursor", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list tasks"})
		return
	}

	responses := make([]models.TaskResponse, len(tasks))
	for i, task := range tasks {
		responses[i] = task.ToResponse()
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       responses,
		"pagination": pagination,
	})
}

// Attempts handles listing a task's per-attempt execution history
//
//	@Summary		List task attempts
//	@Description	Returns the per-attempt execution history for a task, newest first
//	@Tags			Tasks
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string					true	"Task ID"
//	@Param			limit	query		int						false	"Page size (max 100)"
//	@Param			offset	query		int						false	"Page offset"
//	@Success		200		{object}	map[string]interface{}	"Attempts retrieved successfully"
//	@Failure		400		{object}	models.ErrorResponse	"Invalid task ID"
//	@Failure		404		{object}	models.ErrorResponse	"Task not found"
//	@Router			/tasks/{id}/attempts [get]
func (h *TaskHandler) Attempts(c *gin.Context) {
	taskID, err := models.ValidateID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid task ID"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	attempts, total, err := h.tasks.Attempts(c.Request.Context(), taskID, limit, offset)
	if err != nil {
		if errors.Is(err, database.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
			return
		}
		h.logger.Error("failed to list attempts", "task_id", taskID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list attempts"})
		return
	}

	responses := make([]models.AttemptResponse, len(attempts))
	for i, attempt := range attempts {
		responses[i] = attempt.ToResponse()
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    responses,
		"total":   total,
	})
}
