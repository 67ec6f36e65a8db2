package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestIDRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.GET("/echo", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})
	return router
}

func TestRequestIDGeneratedWhenAbsent(t *testing.T) {
	router := requestIDRouter()

	req := httptest.NewRequest("GET", "/echo", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	headerID := w.Header().Get("X-Request-ID")
	require.NotEmpty(t, headerID)

	// the generated ID is a UUID and matches what handlers observe
	_, err := uuid.Parse(headerID)
	assert.NoError(t, err)
	assert.Equal(t, headerID, w.Body.String())
}

func TestRequestIDPropagatedWhenProvided(t *testing.T) {
	router := requestIDRouter()

	req := httptest.NewRequest("GET", "/echo", nil)
	req.Header.Set("X-Request-ID", "upstream-correlation-id")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "upstream-correlation-id", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "upstream-correlation-id", w.Body.String())
}

func TestRequestIDsAreUnique(t *testing.T) {
	router := requestIDRouter()

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("GET", "/echo", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		id := w.Header().Get("X-Request-ID")
		assert.False(t, seen[id], "request ID %q repeated", id)
		seen[id] = true
	}
}
