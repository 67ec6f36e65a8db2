// Package main TaskQueue API Server
//
//	@title			TaskQueue API
//	@version		1.0.0
//	@description	TaskQueue is a background task queue: producers submit named units of work, a worker fleet executes them with deterministic retry and priority semantics.
//
//	@contact.name	TaskQueue Support
//	@contact.url	https://github.com/riftworks/taskqueue
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/api/v1
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and JWT token.
//
//	@tag.name			Authentication
//	@tag.description	Producer authentication operations
//	@tag.name			Tasks
//	@tag.description	Task submission and listing operations
//	@tag.name			Queues
//	@tag.description	Queue observability operations
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/riftworks/taskqueue/internal/api/routes"
	"github.com/riftworks/taskqueue/internal/auth"
	"github.com/riftworks/taskqueue/internal/config"
	"github.com/riftworks/taskqueue/internal/database"
	"github.com/riftworks/taskqueue/internal/executor"
	"github.com/riftworks/taskqueue/internal/queue"
	"github.com/riftworks/taskqueue/internal/services"
	"github.com/riftworks/taskqueue/internal/tasks"
	"github.com/riftworks/taskqueue/internal/worker"
	"github.com/riftworks/taskqueue/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logger.Level, cfg.Logger.Format)

	// Initialize database connection
	dbConn, err := database.NewConnection(&cfg.Database, log.Logger)
	if err != nil {
		log.Error("failed to initialize database connection", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	// Run database migrations
	migrateConfig := &database.MigrateConfig{
		DatabaseConfig: &cfg.Database,
		MigrationsPath: "file://migrations",
		Logger:         log.Logger,
	}

	if err := database.MigrateUp(migrateConfig); err != nil {
		log.Error("failed to run database migrations", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	repos := database.NewRepositories(dbConn)

	// Perform database health check
	healthCtx, healthCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer healthCancel()

	if err := dbConn.HealthCheck(healthCtx); err != nil {
		log.Error("database health check failed", "error", err)
		os.Exit(1)
	}

	log.Info("database initialized successfully")

	// Initialize JWT service
	jwtService := auth.NewJWTService(&cfg.JWT)

	// Initialize authentication service
	authService := auth.NewService(repos.Producers, jwtService, log.Logger, cfg)

	// Initialize broker connection
	redisClient, err := queue.NewRedisClient(&cfg.Redis, log.Logger)
	if err != nil {
		log.Error("failed to initialize Redis client", "error", err)
		os.Exit(1)
	}

	broker, err := queue.NewRedisBroker(redisClient, &cfg.Queue, log.Logger)
	if err != nil {
		log.Error("failed to initialize broker", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := broker.Close(); err != nil {
			log.Error("failed to close broker", "error", err)
		}
	}()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := broker.IsHealthy(pingCtx); err != nil {
		log.Error("broker health check failed", "error", err)
		os.Exit(1)
	}

	log.Info("broker initialized successfully")

	// Initialize queue manager
	queueManager, err := queue.NewTaskQueueManager(repos.Tasks, repos.Attempts, broker, &cfg.Queue, log.Logger)
	if err != nil {
		log.Error("failed to initialize queue manager", "error", err)
		os.Exit(1)
	}

	// Load the task registry; the API host carries the same registry
	// as the workers so the enqueue soft check stays meaningful
	registry, err := tasks.Load()
	if err != nil {
		log.Error("failed to load task registry", "error", err)
		os.Exit(1)
	}

	// Initialize task service
	taskService, err := services.NewTaskService(queueManager, repos.Tasks, repos.Attempts, registry, &cfg.Queue, log.Logger)
	if err != nil {
		log.Error("failed to initialize task service", "error", err)
		os.Exit(1)
	}

	// Optionally run an embedded worker pool for single-process
	// deployments
	var pool *worker.Pool
	if cfg.HasEmbeddedWorkers() {
		executorConfig := executor.DefaultConfig()
		executorConfig.DefaultTimeoutSeconds = cfg.Executor.DefaultTimeoutSeconds
		executorConfig.MaxTimeoutSeconds = cfg.Executor.MaxTimeoutSeconds

		taskExecutor, err := executor.NewRegistryExecutor(registry, executorConfig, log.Logger)
		if err != nil {
			log.Error("failed to initialize executor", "error", err)
			os.Exit(1)
		}

		pool, err = worker.NewPool(queueManager, taskExecutor, cfg.Worker, log.Logger)
		if err != nil {
			log.Error("failed to initialize embedded worker pool", "error", err)
			os.Exit(1)
		}

		if err := pool.Start(context.Background()); err != nil {
			log.Error("failed to start embedded worker pool", "error", err)
			os.Exit(1)
		}
		log.Info("embedded worker pool started", "workers", cfg.Worker.Workers, "queue", cfg.Worker.Queue)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	routes.Setup(router, cfg, log, dbConn, authService, taskService, broker)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info("starting server",
			"host", cfg.Server.Host,
			"port", cfg.Server.Port,
			"env", cfg.Server.Env,
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if pool != nil {
		// the pool's drain budget covers the longest in-flight attempt
		// (max task timeout + grace), so it gets its own deadline
		poolCtx, poolCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownGrace)
		if err := pool.Stop(poolCtx); err != nil {
			log.Error("embedded worker pool shutdown failed", "error", err)
		}
		poolCancel()
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server exited")
}
