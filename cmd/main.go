package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"teacher-dashboard-api/internal/app"
	"teacher-dashboard-api/internal/config"
	"teacher-dashboard-api/internal/logger"
	"teacher-dashboard-api/internal/queue"
	"teacher-dashboard-api/internal/telemetry"
	"teacher-dashboard-api/middleware"
	"teacher-dashboard-api/routes"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	ctx := context.Background()
	shutdownTracer, err := telemetry.InitTracer(ctx, cfg)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}
	defer shutdownTracer(context.Background())

	// Embeddings, vector index, catalog and Redis. A dimension mismatch stops here.
	startCtx, cancelStart := context.WithTimeout(ctx, 3*time.Minute)
	application, err := app.New(startCtx, cfg, logger.With("process", "api"))
	cancelStart()
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := application.Close(ctx); err != nil {
			logger.Warn("error closing clients", "error", err)
		}
	}()

	// Background ingestion needs Redis for asynq.
	var jobs routes.JobQueue
	if application.Redis != nil {
		redisOpt, err := config.AsynqRedisOpt(cfg)
		if err != nil {
			logger.Error("invalid Redis settings for the job queue", "error", err)
			os.Exit(1)
		}
		queueClient := queue.NewClient(redisOpt)
		defer queueClient.Close()
		jobs = queueClient
	}

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	if cfg.TracingEnabled {
		router.Use(middleware.TracingMiddleware(cfg.ServiceName))
		router.Use(middleware.EnrichTrace())
	}
	router.Use(middleware.MetricsMiddleware(application.Metrics))
	router.Use(middleware.RateLimitMiddleware(application.Redis, cfg.RateLimitReqs, cfg.RateLimitWindow))

	// Setup routes
	routes.SetupRootRoutes(router, cfg.VectorBackend)
	routes.SetupSlideRoutes(router, cfg, application.Slides, jobs)

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port, "vector_backend", cfg.VectorBackend, "async", jobs != nil)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
