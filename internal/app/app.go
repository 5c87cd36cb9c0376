package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"teacher-dashboard-api/internal/ai"
	"teacher-dashboard-api/internal/catalog"
	"teacher-dashboard-api/internal/config"
	"teacher-dashboard-api/internal/ingest"
	"teacher-dashboard-api/internal/telemetry"
	"teacher-dashboard-api/internal/vectorstore"
	"teacher-dashboard-api/services"
)

// App holds the clients shared by the API server and the ingest worker.
type App struct {
	Cfg      *config.Config
	Log      *slog.Logger
	Metrics  *telemetry.Metrics
	Embedder ai.Embedder
	Store    vectorstore.Store
	Catalog  catalog.Catalog
	Redis    *redis.Client
	Slides   *services.SlideService

	closers []func(context.Context) error
}

// New connects every backend and verifies the embedding dimension against the
// model and the vector index. Any failure here should stop the process.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{Cfg: cfg, Log: log}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Warn("metrics disabled", "error", err)
	}
	a.Metrics = metrics

	embedder, err := ai.NewGeminiEmbedder(ctx, ai.GeminiOptions{
		APIKey:    cfg.GeminiAPIKey,
		Model:     cfg.GoogleEmbeddingsModel,
		Dimension: cfg.VectorDimensions,
		RPM:       cfg.EmbeddingsRPM,
		Timeout:   cfg.EmbeddingTimeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("init embeddings: %w", err)
	}
	a.Embedder = embedder
	a.onClose(func(context.Context) error { return embedder.Close() })

	if err := ai.VerifyDimension(ctx, embedder); err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("embedding model %s: %w", cfg.GoogleEmbeddingsModel, err)
	}
	log.Info("embedding dimension verified", "model", cfg.GoogleEmbeddingsModel, "dimension", cfg.VectorDimensions)

	store, closeStore, err := NewVectorStore(cfg, log)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Store = store
	a.onClose(closeStore)

	if err := store.EnsureIndex(ctx, cfg.VectorDimensions); err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("prepare vector index: %w", err)
	}

	cat, closeCatalog, err := NewCatalog(cfg, log)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Catalog = cat
	a.onClose(closeCatalog)

	var cache services.EmbeddingCache
	if cfg.RedisURL != "" {
		rdb, err := config.NewRedisClient(cfg)
		if err != nil {
			log.Warn("redis unavailable, continuing without rate limiting and query cache", "error", err)
		} else {
			a.Redis = rdb
			a.onClose(func(context.Context) error { return rdb.Close() })
			cache = services.NewRedisQueryCache(rdb, cfg.GoogleEmbeddingsModel, cfg.QueryCacheTTL, log)
		}
	}

	pipeline, err := ingest.NewPipeline(cfg.MaxChunkSize, cfg.ChunkOverlap, "", log)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("init ingest pipeline: %w", err)
	}

	slides, err := services.NewSlideService(cfg, services.SlideDeps{
		Pipeline: pipeline,
		Embedder: embedder,
		Store:    store,
		Catalog:  cat,
		Cache:    cache,
		Metrics:  metrics,
		Logger:   log,
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Slides = slides
	return a, nil
}

func (a *App) onClose(fn func(context.Context) error) {
	if fn != nil {
		a.closers = append(a.closers, fn)
	}
}

// Close releases clients in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
