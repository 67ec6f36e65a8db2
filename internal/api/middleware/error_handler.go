package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/riftworks/taskqueue/internal/database"
	"github.com/riftworks/taskqueue/internal/queue"
)

// ErrorResponse is the uniform error envelope for unhandled errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// ErrorHandler converts errors attached to the gin context into the
// uniform envelope, mapping the engine's error families onto HTTP
// statuses: missing records are 404s, broker/store trouble is a 503,
// everything else a 500.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last()
		status, label := classifyError(err)

		message := err.Error()
		if status == http.StatusInternalServerError {
			// never leak internals on unexpected failures
			message = "An unexpected error occurred"
		}

		c.JSON(status, ErrorResponse{
			Error:   label,
			Message: message,
			Code:    status,
		})
	}
}

func classifyError(err *gin.Error) (int, string) {
	switch {
	case err.Type == gin.ErrorTypeBind:
		return http.StatusBadRequest, "Bad Request"
	case errors.Is(err.Err, database.ErrTaskNotFound),
		errors.Is(err.Err, database.ErrAttemptNotFound),
		errors.Is(err.Err, database.ErrProducerNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err.Err, database.ErrInvalidCursor):
		return http.StatusBadRequest, "Bad Request"
	case queue.IsConnectionError(err.Err):
		return http.StatusServiceUnavailable, "Service Unavailable"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}
