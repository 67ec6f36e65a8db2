package routes

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/riftworks/taskqueue/internal/auth"
	"github.com/riftworks/taskqueue/internal/config"
	"github.com/riftworks/taskqueue/internal/database"
	"github.com/riftworks/taskqueue/pkg/logger"
)

// Helper function to create a test router with all routes configured
func setupTestRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()

	// Configure method not allowed handling
	router.HandleMethodNotAllowed = true

	// Create test configuration
	cfg := &config.Config{
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		},
	}

	// Create test logger
	var buf bytes.Buffer
	log := logger.NewWithWriter("info", "json", &buf)

	// Create minimal test dependencies
	var dbConn *database.Connection // nil is fine for route testing
	authService := &auth.Service{}  // empty is fine for route testing

	// Setup routes; nil service and broker are fine because the
	// unauthenticated requests below never reach the handlers
	Setup(router, cfg, log, dbConn, authService, nil, nil)

	return router
}

func TestSetup(t *testing.T) {
	t.Run("setup creates router without panicking", func(t *testing.T) {
		router := setupTestRouter(t)
		assert.NotNil(t, router)
	})
}

func TestHealthRoutes(t *testing.T) {
	router := setupTestRouter(t)

	testCases := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{
			name:           "health endpoint exists",
			method:         "GET",
			path:           "/health",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "readiness endpoint exists",
			method:         "GET",
			path:           "/ready",
			expectedStatus: http.StatusOK,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.expectedStatus, w.Code)
		})
	}
}

func TestPingRoute(t *testing.T) {
	router := setupTestRouter(t)

	req := httptest.NewRequest("GET", "/api/v1/ping", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pong")
}

func TestAuthRoutesExist(t *testing.T) {
	router := setupTestRouter(t)

	testCases := []struct {
		name   string
		method string
		path   string
	}{
		{
			name:   "register route exists",
			method: "POST",
			path:   "/api/v1/auth/register",
		},
		{
			name:   "login route exists",
			method: "POST",
			path:   "/api/v1/auth/login",
		},
		{
			name:   "refresh route exists",
			method: "POST",
			path:   "/api/v1/auth/refresh",
		},
		{
			name:   "logout route exists",
			method: "POST",
			path:   "/api/v1/auth/logout",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			// The route must exist; a missing route would return 404
			assert.NotEqual(t, http.StatusNotFound, w.Code)
		})
	}
}

func TestTaskRoutesRequireAuth(t *testing.T) {
	router := setupTestRouter(t)

	testCases := []struct {
		name   string
		method string
		path   string
	}{
		{
			name:   "submit task",
			method: "POST",
			path:   "/api/v1/tasks",
		},
		{
			name:   "list tasks",
			method: "GET",
			path:   "/api/v1/tasks",
		},
		{
			name:   "get task",
			method: "GET",
			path:   "/api/v1/tasks/123e4567-e89b-12d3-a456-426614174000",
		},
		{
			name:   "list task attempts",
			method: "GET",
			path:   "/api/v1/tasks/123e4567-e89b-12d3-a456-426614174000/attempts",
		},
		{
			name:   "queue stats",
			method: "GET",
			path:   "/api/v1/queues/default/stats",
		},
		{
			name:   "queue dead-letter",
			method: "GET",
			path:   "/api/v1/queues/default/dead-letter",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			// Without a bearer token every protected route must reject
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestRemovedRoutesAreGone(t *testing.T) {
	router := setupTestRouter(t)

	testCases := []struct {
		name   string
		method string
		path   string
	}{
		{
			name:   "task update is not part of the producer surface",
			method: "PUT",
			path:   "/api/v1/tasks/123e4567-e89b-12d3-a456-426614174000",
		},
		{
			name:   "task delete is not part of the producer surface",
			method: "DELETE",
			path:   "/api/v1/tasks/123e4567-e89b-12d3-a456-426614174000",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	router := setupTestRouter(t)

	req := httptest.NewRequest("DELETE", "/api/v1/ping", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestCORSPreflightRequest(t *testing.T) {
	router := setupTestRouter(t)

	req := httptest.NewRequest("OPTIONS", "/api/v1/ping", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.NotEqual(t, http.StatusNotFound, w.Code)
}
