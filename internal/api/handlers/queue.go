package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/riftworks/taskqueue/internal/services"
)

// QueueHandler exposes broker-side queue observability: per-queue
// statistics and the dead-letter set.
type QueueHandler struct {
	tasks  *services.TaskService
	logger *slog.Logger
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(tasks *services.TaskService, logger *slog.Logger) *QueueHandler {
	return &QueueHandler{
		tasks:  tasks,
		logger: logger,
	}
}

// Stats handles per-queue statistics
//
//	@Summary		Queue statistics
//	@Description	Returns pending, delayed and in-flight counts for a queue
//	@Tags			Queues
//	@Produce		json
//	@Security		BearerAuth
//	@Param			name	path		string					true	"Queue name"
//	@Success		200		{object}	queue.QueueStats		"Statistics retrieved successfully"
//	@Failure		401		{object}	models.ErrorResponse	"Unauthorized"
//	@Router			/queues/{name}/stats [get]
func (h *QueueHandler) Stats(c *gin.Context) {
	queueName := c.Param("name")

	stats, err := h.tasks.QueueStats(c.Request.Context(), queueName)
	if err != nil {
		h.logger.Error("failed to get queue stats", "queue", queueName, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve queue statistics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stats,
	})
}

// DeadLetter handles listing the queue's dead-letter set
//
//	@Summary		Dead-lettered tasks
//	@Description	Returns tasks that exhausted their retries, most recent first
//	@Tags			Queues
//	@Produce		json
//	@Security		BearerAuth
//	@Param			name	path		string					true	"Queue name"
//	@Param			limit	query		int						false	"Page size"
//	@Param			offset	query		int						false	"Page offset"
//	@Success		200		{object}	map[string]interface{}	"Dead-letter entries retrieved successfully"
//	@Failure		401		{object}	models.ErrorResponse	"Unauthorized"
//	@Router			/queues/{name}/dead-letter [get]
func (h *QueueHandler) DeadLetter(c *gin.Context) {
	queueName := c.Param("name")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := h.tasks.DeadLetter(c.Request.Context(), queueName, limit, offset)
	if err != nil {
		h.logger.Error("failed to list dead-letter entries", "queue", queueName, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve dead-letter entries"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    entries,
	})
}
