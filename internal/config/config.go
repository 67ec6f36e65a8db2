package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server          ServerConfig
	Database        DatabaseConfig
	Logger          LoggerConfig
	CORS            CORSConfig
	JWT             JWTConfig
	Executor        ExecutorConfig
	Redis           RedisConfig
	Queue           QueueConfig
	Worker          WorkerConfig
	EmbeddedWorkers bool // Enable worker pool in API server process
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
}

type LoggerConfig struct {
	Level  string
	Format string
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

type JWTConfig struct {
	SecretKey            string
	AccessTokenDuration  time.Duration
	RefreshTokenDuration time.Duration
	Issuer               string
	Audience             string
}

// ExecutorConfig bounds per-attempt handler dispatch: how
// long a claimed attempt is allowed to run before the worker cancels
// it, and the grace added to the timeout ceiling when deriving the
// worker pool's default shutdown drain budget.
type ExecutorConfig struct {
	DefaultTimeoutSeconds int
	MaxTimeoutSeconds     int
	ClaimGraceSeconds     int
}

type RedisConfig struct {
	Host               string
	Port               string
	Password           string
	Database           int
	PoolSize           int
	MinIdleConnections int
	MaxRetries         int
	DialTimeout        time.Duration
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
}

// QueueConfig holds the Broker-side defaults shared by every queue
// namespace.
type QueueConfig struct {
	DefaultQueueName  string
	DefaultMaxRetries int
	DefaultRetryDelay time.Duration
	MaxBackoffDelay   time.Duration
	DeadLetterLimit   int
}

// WorkerConfig is the worker pool supervisor's configuration surface.
type WorkerConfig struct {
	Queue          string
	Workers        int
	MaxTasks       int
	PollInterval   time.Duration
	LogLevel       string
	WorkerIDPrefix string
	ShutdownGrace  time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "localhost"),
			Env:  getEnv("SERVER_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "taskqueue"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
			AllowedMethods: getEnvSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "X-Request-ID"}),
		},
		JWT: JWTConfig{
			SecretKey:            getEnv("JWT_SECRET_KEY", "your-secret-key-change-in-production"),
			AccessTokenDuration:  getEnvDuration("JWT_ACCESS_TOKEN_DURATION", 15*time.Minute),
			RefreshTokenDuration: getEnvDuration("JWT_REFRESH_TOKEN_DURATION", 7*24*time.Hour),
			Issuer:               getEnv("JWT_ISSUER", "taskqueue"),
			Audience:             getEnv("JWT_AUDIENCE", "taskqueue-api"),
		},
		Executor: ExecutorConfig{
			DefaultTimeoutSeconds: getEnvInt("EXECUTOR_DEFAULT_TIMEOUT_SECONDS", 300),
			MaxTimeoutSeconds:     getEnvInt("EXECUTOR_MAX_TIMEOUT_SECONDS", 3600),
			ClaimGraceSeconds:     getEnvInt("EXECUTOR_CLAIM_GRACE_SECONDS", 30),
		},
		Redis: RedisConfig{
			Host:               getEnv("REDIS_HOST", "localhost"),
			Port:               getEnv("REDIS_PORT", "6379"),
			Password:           getEnv("REDIS_PASSWORD", ""),
			Database:           getEnvInt("REDIS_DATABASE", 0),
			PoolSize:           getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConnections: getEnvInt("REDIS_MIN_IDLE_CONNECTIONS", 5),
			MaxRetries:         getEnvInt("REDIS_MAX_RETRIES", 3),
			DialTimeout:        getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:        getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:       getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			IdleTimeout:        getEnvDuration("REDIS_IDLE_TIMEOUT", 5*time.Minute),
		},
		Queue: QueueConfig{
			DefaultQueueName:  getEnv("QUEUE_DEFAULT_NAME", "default"),
			DefaultMaxRetries: getEnvInt("QUEUE_DEFAULT_MAX_RETRIES", 3),
			DefaultRetryDelay: getEnvDuration("QUEUE_DEFAULT_RETRY_DELAY", 60*time.Second),
			MaxBackoffDelay:   getEnvDuration("QUEUE_MAX_BACKOFF_DELAY", 3600*time.Second), // queue.MaxBackoffSeconds
			DeadLetterLimit:   getEnvInt("QUEUE_DEAD_LETTER_LIMIT", 1000),
		},
		Worker: WorkerConfig{
			Queue:          getEnv("WORKER_QUEUE", "default"),
			Workers:        getEnvInt("WORKER_WORKERS", 1),
			MaxTasks:       getEnvInt("WORKER_MAX_TASKS", 0),
			PollInterval:   getEnvDuration("WORKER_POLL_INTERVAL", 2*time.Second),
			LogLevel:       getEnv("WORKER_LOG_LEVEL", "INFO"),
			WorkerIDPrefix: getEnv("WORKER_ID_PREFIX", "taskqueue-worker"),
			ShutdownGrace:  getEnvDuration("WORKER_SHUTDOWN_GRACE", 0),
		},
		EmbeddedWorkers: getEnvBool("EMBEDDED_WORKERS", true), // Default true for development simplicity
	}

	// A pool draining for shutdown must wait out the longest possible
	// in-flight attempt (its timeout plus the claim grace), since
	// attempts are never interrupted mid-execution. The env var only
	// overrides this for deployments that accept abandoning attempts
	// to the reclaim sweep sooner.
	if config.Worker.ShutdownGrace <= 0 {
		config.Worker.ShutdownGrace = time.Duration(config.Executor.MaxTimeoutSeconds+config.Executor.ClaimGraceSeconds) * time.Second
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("invalid server port: %s", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.JWT.SecretKey == "" {
		return fmt.Errorf("JWT secret key is required")
	}

	if c.JWT.AccessTokenDuration <= 0 {
		return fmt.Errorf("JWT access token duration must be positive")
	}

	if c.JWT.RefreshTokenDuration <= 0 {
		return fmt.Errorf("JWT refresh token duration must be positive")
	}

	if c.Executor.DefaultTimeoutSeconds <= 0 {
		return fmt.Errorf("executor default timeout must be positive")
	}

	if c.Executor.MaxTimeoutSeconds < c.Executor.DefaultTimeoutSeconds {
		return fmt.Errorf("executor max timeout must be >= default timeout")
	}

	if c.Executor.ClaimGraceSeconds < 0 {
		return fmt.Errorf("executor claim grace must be non-negative")
	}

	// Redis validation
	if c.Redis.Host == "" {
		return fmt.Errorf("Redis host is required")
	}

	if c.Redis.Port == "" {
		return fmt.Errorf("Redis port is required")
	}

	if c.Redis.PoolSize <= 0 {
		return fmt.Errorf("Redis pool size must be positive")
	}

	if c.Redis.MinIdleConnections < 0 {
		return fmt.Errorf("Redis min idle connections must be non-negative")
	}

	if c.Redis.MaxRetries < 0 {
		return fmt.Errorf("Redis max retries must be non-negative")
	}

	// Queue validation
	if c.Queue.DefaultQueueName == "" {
		return fmt.Errorf("default queue name is required")
	}

	if c.Queue.DefaultMaxRetries < 0 {
		return fmt.Errorf("default max retries must be non-negative")
	}

	if c.Queue.DefaultRetryDelay < 0 {
		return fmt.Errorf("default retry delay must be non-negative")
	}

	if c.Queue.MaxBackoffDelay <= 0 {
		return fmt.Errorf("max backoff delay must be positive")
	}

	if c.Queue.DeadLetterLimit <= 0 {
		return fmt.Errorf("dead letter limit must be positive")
	}

	// Worker validation
	if c.Worker.Queue == "" {
		return fmt.Errorf("worker queue is required")
	}

	if c.Worker.Workers <= 0 {
		return fmt.Errorf("worker count must be positive")
	}

	if c.Worker.MaxTasks < 0 {
		return fmt.Errorf("worker max tasks must be non-negative (0 = unbounded)")
	}

	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker poll interval must be positive")
	}

	if c.Worker.WorkerIDPrefix == "" {
		return fmt.Errorf("worker ID prefix is required")
	}

	if c.Worker.ShutdownGrace <= 0 {
		return fmt.Errorf("worker shutdown grace must be positive")
	}

	// Embedded workers validation
	if c.EmbeddedWorkers {
		// When embedded workers are enabled, Redis must be configured
		// since workers need the broker to claim tasks
		if c.Redis.Host == "" {
			return fmt.Errorf("embedded workers require Redis host to be configured")
		}
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return strings.ToLower(c.Server.Env) == "production"
}

func (c *Config) IsDevelopment() bool {
	return strings.ToLower(c.Server.Env) == "development"
}

func (c *Config) IsTest() bool {
	return strings.ToLower(c.Server.Env) == "test"
}

func (c *Config) HasEmbeddedWorkers() bool {
	return c.EmbeddedWorkers
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		result := strings.Split(value, ",")
		for i, v := range result {
			result[i] = strings.TrimSpace(v)
		}
		return result
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.Atoi(value)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
	}
	return defaultValue
}
