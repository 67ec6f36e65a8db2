package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("warn", "json", &buf)

	log.Info("suppressed")
	log.Warn("emitted")

	output := buf.String()
	assert.NotContains(t, output, "suppressed")
	assert.Contains(t, output, "emitted")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", "json", &buf)

	log.Info("queue drained", "queue", "default")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "queue drained", record["msg"])
	assert.Equal(t, "default", record["queue"])
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", "text", &buf)

	log.Info("queue drained")
	assert.Contains(t, buf.String(), "msg=")
}

func TestDomainHelpers(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", "json", &buf)

	log.WithComponent("worker").WithQueue("emails").WithTaskID("t-1").WithWorkerID("host:1:0").Info("claimed")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "worker", record["component"])
	assert.Equal(t, "emails", record["queue"])
	assert.Equal(t, "t-1", record["task_id"])
	assert.Equal(t, "host:1:0", record["worker_id"])
}

func TestGinLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	log := NewWithWriter("info", "json", &buf)

	router := gin.New()
	router.Use(log.GinLogger())
	router.GET("/tasks", func(c *gin.Context) {
		c.Set("request_id", "req-42")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/tasks?status=PENDING", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "GET", record["method"])
	assert.Equal(t, "/tasks?status=PENDING", record["path"])
	assert.Equal(t, float64(http.StatusOK), record["status"])
	assert.Equal(t, "req-42", record["request_id"])
}

func TestGinLoggerErrorLevels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	log := NewWithWriter("info", "json", &buf)

	router := gin.New()
	router.Use(log.GinLogger())
	router.GET("/fail", func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	})

	req := httptest.NewRequest("GET", "/fail", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "ERROR", record["level"])
}

func TestGinRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	log := NewWithWriter("info", "json", &buf)

	router := gin.New()
	router.Use(log.GinRecovery())
	router.GET("/panic", func(c *gin.Context) {
		panic("kaboom")
	})

	req := httptest.NewRequest("GET", "/panic", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, buf.String(), "kaboom")
}
