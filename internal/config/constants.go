package config

import "time"

// Default timeout and interval constants
// These constants centralize hardcoded values to improve maintainability
const (
	// Worker Pool Supervisor defaults
	DefaultShutdownTimeout = 30 * time.Second
	DefaultPollInterval    = 2 * time.Second
	DefaultClaimGrace      = 30 * time.Second

	// Server configuration defaults
	DefaultServerReadTimeout  = 30 * time.Second
	DefaultServerWriteTimeout = 30 * time.Second

	// Queue/retry defaults
	DefaultMaxRetryAttempts = 3
	DefaultRetryDelay       = 60 * time.Second
	DefaultMaxBackoffDelay  = 3600 * time.Second

	// Task defaults
	DefaultTaskTimeout = 300 // 5 minutes in seconds

	// Database defaults
	DefaultDatabaseTimeout = 30 * time.Second

	// Monitoring intervals
	DefaultMetricsInterval = 1 * time.Minute
	DefaultStatsInterval   = 30 * time.Second
)
