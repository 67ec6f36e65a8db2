package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "taskqueue", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "localhost", cfg.Redis.Host)
	assert.Equal(t, "6379", cfg.Redis.Port)
	assert.Equal(t, "default", cfg.Queue.DefaultQueueName)
	assert.Equal(t, 3, cfg.Queue.DefaultMaxRetries)
	assert.Equal(t, 60*time.Second, cfg.Queue.DefaultRetryDelay)
	assert.Equal(t, 3600*time.Second, cfg.Queue.MaxBackoffDelay)
	assert.Equal(t, 1, cfg.Worker.Workers)
	assert.Equal(t, 0, cfg.Worker.MaxTasks)
	assert.Equal(t, 2*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 300, cfg.Executor.DefaultTimeoutSeconds)
	assert.Equal(t, 3600, cfg.Executor.MaxTimeoutSeconds)
}

func TestLoadShutdownGraceDerivedFromTimeoutCeiling(t *testing.T) {
	// with no override the drain budget covers the longest attempt:
	// max task timeout plus the claim grace
	cfg, err := Load()
	require.NoError(t, err)

	expected := time.Duration(cfg.Executor.MaxTimeoutSeconds+cfg.Executor.ClaimGraceSeconds) * time.Second
	assert.Equal(t, expected, cfg.Worker.ShutdownGrace)
}

func TestLoadShutdownGraceOverride(t *testing.T) {
	t.Setenv("WORKER_SHUTDOWN_GRACE", "45s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Worker.ShutdownGrace)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("DB_NAME", "queue_prod")
	t.Setenv("REDIS_HOST", "broker.internal")
	t.Setenv("REDIS_DATABASE", "3")
	t.Setenv("QUEUE_DEFAULT_NAME", "ingest")
	t.Setenv("WORKER_WORKERS", "8")
	t.Setenv("WORKER_POLL_INTERVAL", "500ms")
	t.Setenv("WORKER_LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, "queue_prod", cfg.Database.Database)
	assert.Equal(t, "broker.internal", cfg.Redis.Host)
	assert.Equal(t, 3, cfg.Redis.Database)
	assert.Equal(t, "ingest", cfg.Queue.DefaultQueueName)
	assert.Equal(t, 8, cfg.Worker.Workers)
	assert.Equal(t, 500*time.Millisecond, cfg.Worker.PollInterval)
	assert.Equal(t, "DEBUG", cfg.Worker.LogLevel)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric server port", "SERVER_PORT", "not-a-port"},
		{"zero workers", "WORKER_WORKERS", "0"},
		{"negative max tasks", "WORKER_MAX_TASKS", "-1"},
		{"zero poll interval", "WORKER_POLL_INTERVAL", "0s"},
		{"zero redis pool", "REDIS_POOL_SIZE", "0"},
		{"executor max below default", "EXECUTOR_MAX_TIMEOUT_SECONDS", "10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestEnvironmentPredicates(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Env: "production"}}
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())

	cfg.Server.Env = "development"
	assert.True(t, cfg.IsDevelopment())

	cfg.Server.Env = "test"
	assert.True(t, cfg.IsTest())
}
