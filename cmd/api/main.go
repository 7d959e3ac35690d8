package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"

	"github.com/weavetrack/erp-api/internal/cache"
	"github.com/weavetrack/erp-api/internal/config"
	"github.com/weavetrack/erp-api/internal/database"
	"github.com/weavetrack/erp-api/internal/handlers"
	"github.com/weavetrack/erp-api/internal/jobs"
	"github.com/weavetrack/erp-api/internal/repository"
	"github.com/weavetrack/erp-api/internal/services"
	"github.com/weavetrack/erp-api/pkg/logger"
)

// @title WeaveTrack ERP API
// @version 1.0
// @description Pre-processing batch tracking with status transitions and audit trail
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Setup(cfg.Environment)

	// Initialize Sentry when DSN is configured
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 0.2,
			Environment:      cfg.Environment,
		}); err != nil {
			logger.Error("Sentry initialization failed", "error", err)
		} else {
			logger.Info("Sentry initialized")
		}
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(cfg.DatabaseURL, cfg.Environment)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	logger.Info("Connected to database")

	sqlDB, err := db.DB()
	if err != nil {
		logger.Error("Failed to get database handle", "error", err)
		os.Exit(1)
	}

	// Redis is optional; batch numbers fall back to the database
	redisClient, err := cache.Connect(context.Background(), cfg.RedisURL)
	if err != nil {
		logger.Warn("Redis unavailable, continuing without it", "error", err)
	} else if redisClient != nil {
		logger.Info("Connected to Redis")
	}

	repos := repository.NewRepositories(db)

	worker := jobs.NewWorker(cfg.WorkerCount)
	logger.Info("Started background worker", "goroutines", cfg.WorkerCount)

	svcs := services.NewServices(repos, redisClient, cfg)

	scheduler := jobs.NewScheduler(worker)
	if err := scheduler.Register(jobs.AuditRetentionJobName, cfg.AuditRetentionCron,
		jobs.AuditRetentionJob(svcs.Audit, cfg.AuditRetentionDays)); err != nil {
		logger.Error("Failed to schedule audit retention", "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	logger.Info("Scheduled recurring jobs",
		"audit_retention_next_run", scheduler.NextRun(jobs.AuditRetentionJobName))

	h := handlers.NewHandlers(svcs, sqlDB, worker)
	router := setupRouter(h, cfg)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	select {
	case <-scheduler.Stop().Done():
	case <-ctx.Done():
	}
	worker.Shutdown()
	logger.Info("Background worker stopped")

	if err := cache.Close(redisClient); err != nil {
		logger.Error("Failed to close Redis", "error", err)
	}
	if err := database.Close(db); err != nil {
		logger.Error("Failed to close database", "error", err)
	}

	if cfg.SentryDSN != "" {
		sentry.Flush(5 * time.Second)
	}

	logger.Info("Server exited gracefully")
}
