package database

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riftworks/taskqueue/internal/config"
)

// Pool tuning for the Metadata Store. The store is touched once per
// state transition, so a modest pool serves many workers.
const (
	poolMaxConns        = 25
	poolMinConns        = 5
	poolMaxConnLifetime = time.Hour
	poolMaxConnIdleTime = 30 * time.Minute
	poolHealthPeriod    = 5 * time.Minute
	connectTimeout      = 10 * time.Second
)

// postgresDSN builds the connection URL for the Metadata Store,
// escaping credentials so they survive special characters.
func postgresDSN(cfg *config.DatabaseConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		cfg.Database,
		cfg.SSLMode,
	)
}

// Connection is the Metadata Store's pgx connection pool.
type Connection struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewConnection opens and pings a connection pool for the Metadata
// Store.
func NewConnection(cfg *config.DatabaseConfig, logger *slog.Logger) (*Connection, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	poolConfig, err := pgxpool.ParseConfig(postgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse database connection string: %w", err)
	}

	poolConfig.MaxConns = poolMaxConns
	poolConfig.MinConns = poolMinConns
	poolConfig.MaxConnLifetime = poolMaxConnLifetime
	poolConfig.MaxConnIdleTime = poolMaxConnIdleTime
	poolConfig.HealthCheckPeriod = poolHealthPeriod
	poolConfig.ConnConfig.ConnectTimeout = connectTimeout

	// A wedged statement must never hold a task transition hostage.
	poolConfig.ConnConfig.RuntimeParams["statement_timeout"] = "30s"
	poolConfig.ConnConfig.RuntimeParams["idle_in_transaction_session_timeout"] = "60s"

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("metadata store connected",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Database,
		"max_conns", poolConfig.MaxConns)

	return &Connection{Pool: pool, logger: logger}, nil
}

// NewConnectionWithRetry dials the Metadata Store with exponential
// backoff, for processes that may start before the database does.
func NewConnectionWithRetry(cfg *config.DatabaseConfig, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}

	const maxAttempts = 5
	delay := 2 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		conn, err := NewConnection(cfg, logger)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		logger.Warn("metadata store connection failed",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"retry_in", delay,
			"error", err)

		if attempt < maxAttempts {
			time.Sleep(delay)
			delay *= 2
		}
	}

	return nil, fmt.Errorf("failed to connect to metadata store after %d attempts: %w", maxAttempts, lastErr)
}

// Close releases the connection pool.
func (c *Connection) Close() {
	if c.Pool != nil {
		c.logger.Info("closing metadata store connection pool")
		c.Pool.Close()
	}
}

// Ping checks that the store answers.
func (c *Connection) Ping(ctx context.Context) error {
	return c.Pool.Ping(ctx)
}

// Stats returns connection pool statistics.
func (c *Connection) Stats() *pgxpool.Stat {
	return c.Pool.Stat()
}

// HealthCheck verifies the store is reachable and serving queries.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if c.Pool == nil {
		return fmt.Errorf("database pool is not initialized")
	}
	if err := c.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var one int
	if err := c.Pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database query test failed: %w", err)
	}
	if one != 1 {
		return fmt.Errorf("unexpected database query result: %d", one)
	}
	return nil
}

// Transaction interface represents a database transaction
type Transaction interface {
	pgx.Tx
	// Repositories provides access to transaction-aware repositories
	Repositories() TransactionalRepositories
}

// TransactionalRepositories provides transaction-aware repository interfaces
type TransactionalRepositories struct {
	Tasks     TaskRepository
	Attempts  AttemptRepository
	Producers ProducerRepository
}

// transaction implements the Transaction interface
type transaction struct {
	pgx.Tx
	conn *Connection
}

// Repositories returns transaction-aware repositories
func (t *transaction) Repositories() TransactionalRepositories {
	return TransactionalRepositories{
		Tasks:     NewTaskRepositoryWithTx(t.Tx),
		Attempts:  NewAttemptRepositoryWithTx(t.Tx),
		Producers: NewProducerRepositoryWithTx(t.Tx),
	}
}

// BeginTx starts a new database transaction
func (c *Connection) BeginTx(ctx context.Context) (Transaction, error) {
	tx, err := c.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &transaction{Tx: tx, conn: c}, nil
}

// WithTransaction runs fn inside a transaction, committing on nil and
// rolling back otherwise.
func (c *Connection) WithTransaction(ctx context.Context, fn func(tx Transaction) error) error {
	tx, err := c.BeginTx(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			c.logger.Error("failed to rollback transaction", "error", err)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
