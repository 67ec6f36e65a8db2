package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/riftworks/taskqueue/internal/api/handlers"
	"github.com/riftworks/taskqueue/internal/api/middleware"
	"github.com/riftworks/taskqueue/internal/auth"
	"github.com/riftworks/taskqueue/internal/config"
	"github.com/riftworks/taskqueue/internal/database"
	"github.com/riftworks/taskqueue/internal/queue"
	"github.com/riftworks/taskqueue/internal/services"
	"github.com/riftworks/taskqueue/pkg/logger"
)

func Setup(router *gin.Engine, cfg *config.Config, log *logger.Logger, dbConn *database.Connection, authService *auth.Service, taskService *services.TaskService, broker queue.Broker) {
	setupMiddleware(router, cfg, log)
	setupRoutes(router, cfg, log, dbConn, authService, taskService, broker)
}

func setupMiddleware(router *gin.Engine, cfg *config.Config, log *logger.Logger) {
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.CORS))
	router.Use(log.GinLogger())
	router.Use(log.GinRecovery())
	router.Use(middleware.ErrorHandler())
}

func setupRoutes(router *gin.Engine, cfg *config.Config, log *logger.Logger, dbConn *database.Connection, authService *auth.Service, taskService *services.TaskService, broker queue.Broker) {
	healthHandler := handlers.NewHealthHandler()

	// Add health checks for different components
	healthHandler.AddHealthCheck("database", &DatabaseHealthChecker{conn: dbConn})
	healthHandler.AddHealthCheck("broker", &BrokerHealthChecker{broker: broker})

	authHandler := handlers.NewAuthHandler(authService, log.Logger)
	authMiddleware := middleware.NewAuthMiddleware(authService, log.Logger)
	docsHandler := handlers.NewDocsHandler()

	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Readiness)

	// Documentation routes
	router.GET("/api", docsHandler.GetAPIIndex)
	router.GET("/docs", docsHandler.RedirectToSwaggerUI)
	router.GET("/docs/*any", docsHandler.GetSwaggerUI())

	// Swagger spec endpoints at a different path to avoid conflict
	router.GET("/swagger.json", docsHandler.GetSwaggerJSON)
	router.GET("/swagger.yaml", docsHandler.GetSwaggerYAML)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"message": "pong",
			})
		})

		// Auth endpoints (public); test mode relaxes every quota
		auth := v1.Group("/auth")
		{
			auth.POST("/register",
				middleware.RateLimit(middleware.RegisterQuota(cfg.IsTest()), log.Logger),
				authHandler.Register,
			)
			auth.POST("/login",
				middleware.RateLimit(middleware.AuthQuota(cfg.IsTest()), log.Logger),
				authHandler.Login,
			)
			auth.POST("/refresh",
				middleware.RateLimit(middleware.RefreshQuota(cfg.IsTest()), log.Logger),
				authHandler.RefreshToken,
			)
			auth.POST("/logout", authHandler.Logout)
		}

		// Protected endpoints
		protected := v1.Group("")
		protected.Use(authMiddleware.RequireAuth())
		{
			protected.GET("/auth/me", authHandler.Me)
		}

		// Task submission and listing endpoints
		taskHandler := handlers.NewTaskHandler(taskService, log.Logger)
		queueHandler := handlers.NewQueueHandler(taskService, log.Logger)
		taskValidation := middleware.NewValidationMiddleware(log.Logger)

		submitRateLimit := middleware.RateLimit(middleware.SubmitQuota(cfg.IsTest()), log.Logger)
		readRateLimit := middleware.RateLimit(middleware.ReadQuota(cfg.IsTest()), log.Logger)

		protected.POST("/tasks",
			middleware.RequestSizeLimit(log.Logger),
			submitRateLimit,
			taskValidation.ValidateTaskEnqueue(),
			taskHandler.Create,
		)
		protected.GET("/tasks",
			readRateLimit,
			taskHandler.List,
		)
		protected.GET("/tasks/:id",
			readRateLimit,
			taskHandler.Get,
		)
		protected.GET("/tasks/:id/attempts",
			readRateLimit,
			taskHandler.Attempts,
		)

		// Queue observability endpoints
		protected.GET("/queues/:name/stats",
			readRateLimit,
			queueHandler.Stats,
		)
		protected.GET("/queues/:name/dead-letter",
			readRateLimit,
			queueHandler.DeadLetter,
		)
	}
}

// DatabaseHealthChecker implements health checking for database
type DatabaseHealthChecker struct {
	conn *database.Connection
}

func (d *DatabaseHealthChecker) CheckHealth() (status string, err error) {
	if d.conn == nil {
		return "ready", nil // For tests, consider nil database as healthy
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.conn.HealthCheck(ctx); err != nil {
		return "unhealthy", err
	}
	return "ready", nil
}

// BrokerHealthChecker implements health checking for the broker
type BrokerHealthChecker struct {
	broker queue.Broker
}

func (b *BrokerHealthChecker) CheckHealth() (status string, err error) {
	if b.broker == nil {
		return "ready", nil // For tests, consider nil broker as healthy
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.broker.IsHealthy(ctx); err != nil {
		return "unhealthy", err
	}
	return "ready", nil
}
