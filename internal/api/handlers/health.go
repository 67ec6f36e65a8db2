package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker probes one dependency of the submission surface.
type HealthChecker interface {
	CheckHealth() (status string, err error)
}

// ComponentStatus is one dependency's probe result.
type ComponentStatus struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// HealthResponse is the health endpoint payload: overall verdict plus
// one entry per registered dependency (metadata store, broker, ...).
type HealthResponse struct {
	Status        string                     `json:"status"`
	Service       string                     `json:"service"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Components    map[string]ComponentStatus `json:"components,omitempty"`
}

// HealthHandler aggregates dependency probes for /health and /ready.
type HealthHandler struct {
	mu        sync.RWMutex
	checkers  map[string]HealthChecker
	startedAt time.Time
}

// NewHealthHandler creates a health handler with no checks registered.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{
		checkers:  make(map[string]HealthChecker),
		startedAt: time.Now(),
	}
}

// AddHealthCheck registers a dependency probe under name.
func (h *HealthHandler) AddHealthCheck(name string, checker HealthChecker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// probe runs every registered check and reports whether all passed.
func (h *HealthHandler) probe() (map[string]ComponentStatus, bool) {
	h.mu.RLock()
	checkers := make(map[string]HealthChecker, len(h.checkers))
	for name, checker := range h.checkers {
		checkers[name] = checker
	}
	h.mu.RUnlock()

	components := make(map[string]ComponentStatus, len(checkers))
	healthy := true
	for name, checker := range checkers {
		started := time.Now()
		status, err := checker.CheckHealth()
		component := ComponentStatus{
			Status:    status,
			LatencyMs: time.Since(started).Milliseconds(),
		}
		if err != nil {
			component.Error = err.Error()
			healthy = false
		}
		components[name] = component
	}
	return components, healthy
}

// Health reports liveness: the process is up and serving.
//
//	@Summary	Health check
//	@Tags		Health
//	@Produce	json
//	@Success	200	{object}	HealthResponse	"Service is healthy"
//	@Router		/health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:        "healthy",
		Service:       "taskqueue-api",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	})
}

// Readiness reports whether every dependency (metadata store, broker)
// answers its probe; a failing dependency flips the verdict to 503 so
// load balancers stop routing submissions here.
//
//	@Summary	Readiness check
//	@Tags		Health
//	@Produce	json
//	@Success	200	{object}	HealthResponse	"All dependencies ready"
//	@Failure	503	{object}	HealthResponse	"One or more dependencies unavailable"
//	@Router		/ready [get]
func (h *HealthHandler) Readiness(c *gin.Context) {
	components, healthy := h.probe()

	resp := HealthResponse{
		Status:        "ready",
		Service:       "taskqueue-api",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Components:    components,
	}

	if !healthy {
		resp.Status = "unavailable"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}
