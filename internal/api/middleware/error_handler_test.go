package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/riftworks/taskqueue/internal/database"
	"github.com/riftworks/taskqueue/internal/queue"
)

func errorRouter(fail func(c *gin.Context)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/boom", fail)
	return router
}

func TestErrorHandlerMapsDomainErrors(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		errType        gin.ErrorType
		expectedStatus int
		expectedLabel  string
	}{
		{
			name:           "task not found",
			err:            fmt.Errorf("load: %w", database.ErrTaskNotFound),
			errType:        gin.ErrorTypePrivate,
			expectedStatus: http.StatusNotFound,
			expectedLabel:  "Not Found",
		},
		{
			name:           "producer not found",
			err:            database.ErrProducerNotFound,
			errType:        gin.ErrorTypePrivate,
			expectedStatus: http.StatusNotFound,
			expectedLabel:  "Not Found",
		},
		{
			name:           "invalid cursor",
			err:            database.ErrInvalidCursor,
			errType:        gin.ErrorTypePrivate,
			expectedStatus: http.StatusBadRequest,
			expectedLabel:  "Bad Request",
		},
		{
			name:           "bind error",
			err:            errors.New("unexpected end of JSON input"),
			errType:        gin.ErrorTypeBind,
			expectedStatus: http.StatusBadRequest,
			expectedLabel:  "Bad Request",
		},
		{
			name:           "broker connection failure",
			err:            queue.NewQueueOperationError("pop_pending", "default", "", errors.New("connection refused"), true),
			errType:        gin.ErrorTypePrivate,
			expectedStatus: http.StatusServiceUnavailable,
			expectedLabel:  "Service Unavailable",
		},
		{
			name:           "unexpected error",
			err:            errors.New("secret database password leaked"),
			errType:        gin.ErrorTypePrivate,
			expectedStatus: http.StatusInternalServerError,
			expectedLabel:  "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := errorRouter(func(c *gin.Context) {
				_ = c.Error(tt.err).SetType(tt.errType)
			})

			req := httptest.NewRequest("GET", "/boom", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedLabel)
		})
	}
}

func TestErrorHandlerHidesInternalDetails(t *testing.T) {
	router := errorRouter(func(c *gin.Context) {
		_ = c.Error(errors.New("dsn=postgres://admin:hunter2@db"))
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "hunter2")
	assert.Contains(t, w.Body.String(), "An unexpected error occurred")
}

func TestErrorHandlerSkipsWrittenResponses(t *testing.T) {
	router := errorRouter(func(c *gin.Context) {
		c.JSON(http.StatusConflict, gin.H{"error": "already handled"})
		_ = c.Error(errors.New("logged but not rendered"))
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already handled")
}

func TestErrorHandlerNoErrors(t *testing.T) {
	router := errorRouter(func(c *gin.Context) {
		c.String(http.StatusOK, "fine")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fine", w.Body.String())
}
