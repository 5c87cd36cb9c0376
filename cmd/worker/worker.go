package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"

	"teacher-dashboard-api/internal/app"
	"teacher-dashboard-api/internal/config"
	"teacher-dashboard-api/internal/logger"
	"teacher-dashboard-api/internal/queue"
	"teacher-dashboard-api/internal/telemetry"
	"teacher-dashboard-api/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	if cfg.RedisURL == "" {
		log.Fatal("REDIS_URL is required for the ingest worker")
	}

	logger.InitLogger(cfg)
	workerLog := logger.With("process", "worker")

	ctx := context.Background()
	shutdownTracer, err := telemetry.InitTracer(ctx, cfg)
	if err != nil {
		workerLog.Warn("tracing disabled", "error", err)
	}
	defer shutdownTracer(context.Background())

	startCtx, cancelStart := context.WithTimeout(ctx, 3*time.Minute)
	application, err := app.New(startCtx, cfg, workerLog)
	cancelStart()
	if err != nil {
		workerLog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close(context.Background())
	if !app.SharedCatalog(cfg) {
		workerLog.Warn("slide catalog is in memory; queued uploads will not appear in the API listing",
			"hint", "set CATALOG_ENABLED=true and MONGO_URI")
	}

	redisOpt, err := config.AsynqRedisOpt(cfg)
	if err != nil {
		workerLog.Error("invalid Redis settings", "error", err)
		os.Exit(1)
	}

	// Create Asynq server
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				queue.QueueCritical: 6,
				queue.QueueDefault:  3,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				workerLog.Error("task failed", "type", task.Type(), "retried", retried, "max_retry", maxRetry, "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(application.Slides, workerLog)
	mux := asynq.NewServeMux()
	processor.Register(mux)

	// Uploads whose task was archived or lost are swept after the retention window.
	janitor := services.NewStorageJanitor(filepath.Join(cfg.FileStorageDir, "uploads"), cfg.StorageRetention, workerLog)
	if err := janitor.Start(time.Hour); err != nil {
		workerLog.Warn("storage janitor not started", "error", err)
	} else {
		defer janitor.Stop()
	}

	workerLog.Info("starting asynq worker",
		"concurrency", cfg.WorkerConcurrency,
		"queues", []string{queue.QueueCritical, queue.QueueDefault},
		"redis", redisOpt.Addr,
	)

	// Run blocks until SIGTERM/SIGINT.
	if err := server.Run(mux); err != nil {
		workerLog.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}
