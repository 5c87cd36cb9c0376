package app

import (
	"context"
	"fmt"
	"log/slog"

	"teacher-dashboard-api/internal/catalog"
	"teacher-dashboard-api/internal/config"
	"teacher-dashboard-api/internal/vectorstore"
)

// NewVectorStore builds the backend named by VECTOR_BACKEND. The returned
// close func may be nil.
func NewVectorStore(cfg *config.Config, log *slog.Logger) (vectorstore.Store, func(context.Context) error, error) {
	if log == nil {
		log = slog.Default()
	}
	switch cfg.VectorBackend {
	case config.BackendPinecone, "":
		store, err := vectorstore.NewPinecone(vectorstore.PineconeConfig{
			APIKey:             cfg.PineconeAPIKey,
			APIVersion:         cfg.PineconeAPIVersion,
			BaseURL:            cfg.PineconeBaseURL,
			IndexName:          cfg.PineconeIndex,
			IndexHost:          cfg.PineconeIndexHost,
			Namespace:          cfg.PineconeNamespace,
			Cloud:              cfg.PineconeCloud,
			Region:             cfg.PineconeRegion,
			RecreateOnMismatch: cfg.PineconeRecreateOnMismatch,
		}, log)
		if err != nil {
			return nil, nil, fmt.Errorf("init pinecone: %w", err)
		}
		return store, nil, nil

	case config.BackendPGVector:
		pool, err := config.ConnectPostgres(cfg)
		if err != nil {
			return nil, nil, err
		}
		store, err := vectorstore.NewPGVector(pool, cfg.PGVectorTable, log)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("init pgvector: %w", err)
		}
		return store, func(context.Context) error { pool.Close(); return nil }, nil

	case config.BackendMemory:
		log.Warn("using in-memory vector store; vectors are lost on restart")
		return vectorstore.NewMemory(), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}

// SharedCatalog reports whether the catalog lives in Mongo, where the API and
// the worker see the same rows.
func SharedCatalog(cfg *config.Config) bool {
	return cfg.CatalogEnabled && cfg.MongoURI != ""
}

// NewCatalog returns the Mongo catalog when it is enabled and configured,
// otherwise an in-process one.
func NewCatalog(cfg *config.Config, log *slog.Logger) (catalog.Catalog, func(context.Context) error, error) {
	if log == nil {
		log = slog.Default()
	}
	if !SharedCatalog(cfg) {
		log.Info("slide catalog kept in memory")
		return catalog.NewMemory(), nil, nil
	}
	client, err := config.ConnectMongoDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	col := client.Database(cfg.DBName).Collection(config.SlidesCollection)
	log.Info("slide catalog connected", "db", cfg.DBName, "collection", config.SlidesCollection)
	return catalog.NewMongo(col), client.Disconnect, nil
}
