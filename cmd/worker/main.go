// Package main TaskQueue worker runner: launches a worker pool bound
// to one queue, plus operational tooling over the task registry.
//
// Exit codes: 0 on clean shutdown, 1 on configuration error, 2 on
// unrecoverable broker/store failure.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/riftworks/taskqueue/internal/config"
	"github.com/riftworks/taskqueue/internal/database"
	"github.com/riftworks/taskqueue/internal/executor"
	"github.com/riftworks/taskqueue/internal/queue"
	"github.com/riftworks/taskqueue/internal/services"
	"github.com/riftworks/taskqueue/internal/tasks"
	"github.com/riftworks/taskqueue/internal/worker"
	"github.com/riftworks/taskqueue/pkg/logger"
)

const (
	exitOK            = 0
	exitConfigError   = 1
	exitUnrecoverable = 2
)

func main() {
	var (
		queueName    string
		workers      int
		maxTasks     int
		pollInterval time.Duration
		logLevel     string
	)

	rootCmd := &cobra.Command{
		Use:           "run_worker",
		Short:         "Run a pool of task queue workers bound to one queue",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd, queueName, workers, maxTasks, pollInterval, logLevel)
		},
	}

	rootCmd.Flags().StringVar(&queueName, "queue", "", "queue to bind the workers to (default from WORKER_QUEUE)")
	rootCmd.Flags().IntVar(&workers, "workers", 0, "number of workers to run (default from WORKER_WORKERS)")
	rootCmd.Flags().IntVar(&maxTasks, "max-tasks", -1, "attempts per worker before it exits, 0 = unbounded (default from WORKER_MAX_TASKS)")
	rootCmd.Flags().DurationVar(&pollInterval, "poll-interval", 0, "idle claim poll interval (default from WORKER_POLL_INTERVAL)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "DEBUG|INFO|WARNING|ERROR (default from WORKER_LOG_LEVEL)")

	listCmd := &cobra.Command{
		Use:   "list_tasks",
		Short: "Print every registered task name",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := tasks.Load()
			if err != nil {
				return err
			}
			for _, name := range reg.List() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
	rootCmd.AddCommand(listCmd)

	if err := rootCmd.Execute(); err != nil {
		code := exitConfigError
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			code = exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(code)
	}
}

// exitError carries the process exit code a failure maps to.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func runWorker(cmd *cobra.Command, queueName string, workers, maxTasks int, pollInterval time.Duration, logLevel string) error {
	cfg, err := config.Load()
	if err != nil {
		return &exitError{code: exitConfigError, err: fmt.Errorf("failed to load configuration: %w", err)}
	}

	// Flags override the environment-derived worker configuration
	if cmd.Flags().Changed("queue") {
		cfg.Worker.Queue = queueName
	}
	if cmd.Flags().Changed("workers") {
		cfg.Worker.Workers = workers
	}
	if cmd.Flags().Changed("max-tasks") {
		cfg.Worker.MaxTasks = maxTasks
	}
	if cmd.Flags().Changed("poll-interval") {
		cfg.Worker.PollInterval = pollInterval
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Worker.LogLevel = logLevel
	}
	if cfg.Worker.Workers < 1 || cfg.Worker.PollInterval <= 0 || cfg.Worker.MaxTasks < 0 {
		return &exitError{code: exitConfigError, err: fmt.Errorf("invalid worker configuration: workers=%d poll_interval=%s max_tasks=%d",
			cfg.Worker.Workers, cfg.Worker.PollInterval, cfg.Worker.MaxTasks)}
	}

	log := logger.New(cfg.Worker.LogLevel, cfg.Logger.Format)
	log.Info("starting worker runner", "queue", cfg.Worker.Queue, "workers", cfg.Worker.Workers)

	// Metadata store
	dbConn, err := database.NewConnection(&cfg.Database, log.Logger)
	if err != nil {
		return &exitError{code: exitUnrecoverable, err: fmt.Errorf("failed to connect to metadata store: %w", err)}
	}
	defer dbConn.Close()

	healthCtx, healthCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer healthCancel()
	if err := dbConn.HealthCheck(healthCtx); err != nil {
		return &exitError{code: exitUnrecoverable, err: fmt.Errorf("metadata store health check failed: %w", err)}
	}

	repos := database.NewRepositories(dbConn)

	// Broker
	redisClient, err := queue.NewRedisClient(&cfg.Redis, log.Logger)
	if err != nil {
		return &exitError{code: exitUnrecoverable, err: fmt.Errorf("failed to connect to broker: %w", err)}
	}

	broker, err := queue.NewRedisBroker(redisClient, &cfg.Queue, log.Logger)
	if err != nil {
		return &exitError{code: exitUnrecoverable, err: fmt.Errorf("failed to initialize broker: %w", err)}
	}
	defer func() {
		if err := broker.Close(); err != nil {
			log.Error("failed to close broker", "error", err)
		}
	}()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := broker.IsHealthy(pingCtx); err != nil {
		return &exitError{code: exitUnrecoverable, err: fmt.Errorf("broker health check failed: %w", err)}
	}

	// Queue manager
	queueManager, err := queue.NewTaskQueueManager(repos.Tasks, repos.Attempts, broker, &cfg.Queue, log.Logger)
	if err != nil {
		return &exitError{code: exitConfigError, err: err}
	}

	// Registry and executor
	registry, err := tasks.Load()
	if err != nil {
		return &exitError{code: exitConfigError, err: fmt.Errorf("failed to load task registry: %w", err)}
	}

	executorConfig := executor.DefaultConfig()
	executorConfig.DefaultTimeoutSeconds = cfg.Executor.DefaultTimeoutSeconds
	executorConfig.MaxTimeoutSeconds = cfg.Executor.MaxTimeoutSeconds

	taskExecutor, err := executor.NewRegistryExecutor(registry, executorConfig, log.Logger)
	if err != nil {
		return &exitError{code: exitConfigError, err: err}
	}

	// The service layer is not needed by the pool itself, but building
	// it here surfaces wiring errors before any worker starts claiming.
	if _, err := services.NewTaskService(queueManager, repos.Tasks, repos.Attempts, registry, &cfg.Queue, log.Logger); err != nil {
		return &exitError{code: exitConfigError, err: err}
	}

	pool, err := worker.NewPool(queueManager, taskExecutor, cfg.Worker, log.Logger)
	if err != nil {
		return &exitError{code: exitConfigError, err: err}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := pool.Start(ctx); err != nil {
		return &exitError{code: exitUnrecoverable, err: err}
	}

	select {
	case <-ctx.Done():
		log.Info("termination signal received, shutting down")
	case err := <-pool.Fatal():
		log.Error("worker pool hit an unrecoverable failure", "error", err)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownGrace)
		defer cancel()
		_ = pool.Stop(shutdownCtx)
		return &exitError{code: exitUnrecoverable, err: err}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownGrace)
	defer cancel()
	if err := pool.Stop(shutdownCtx); err != nil {
		log.Error("worker pool shutdown failed", "error", err)
	}

	log.Info("worker runner exited")
	return nil
}
