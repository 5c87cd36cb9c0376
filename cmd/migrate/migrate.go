package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"teacher-dashboard-api/internal/app"
	"teacher-dashboard-api/internal/config"
	"teacher-dashboard-api/internal/logger"
	"teacher-dashboard-api/internal/vectorstore"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/migrate <command>")
		fmt.Println("Commands:")
		fmt.Println("  ensure-index     - Create the vector index (or pgvector table) if missing and check its dimension")
		fmt.Println("  describe-index   - Print the Pinecone index description")
		fmt.Println("  recreate-index   - Delete and recreate the Pinecone index with VECTOR_DIM")
		fmt.Println("  catalog-indexes  - Create the MongoDB indexes of the slide catalog")
		os.Exit(1)
	}

	command := os.Args[1]

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.InitLogger(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch command {
	case "ensure-index":
		err = ensureIndex(ctx, cfg)
	case "describe-index":
		err = describeIndex(ctx, cfg)
	case "recreate-index":
		err = recreateIndex(ctx, cfg)
	case "catalog-indexes":
		err = catalogIndexes(ctx, cfg)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", command, err)
	}
	fmt.Printf("%s completed successfully\n", command)
}

func openStore(cfg *config.Config) (vectorstore.Store, func(context.Context) error, error) {
	store, closeFn, err := app.NewVectorStore(cfg, logger.With("process", "migrate"))
	if err != nil {
		return nil, nil, err
	}
	if closeFn == nil {
		closeFn = func(context.Context) error { return nil }
	}
	return store, closeFn, nil
}

func ensureIndex(ctx context.Context, cfg *config.Config) error {
	store, closeFn, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeFn(ctx)

	fmt.Printf("Ensuring %s index with dimension %d...\n", cfg.VectorBackend, cfg.VectorDimensions)
	return store.EnsureIndex(ctx, cfg.VectorDimensions)
}

func pinecone(cfg *config.Config) (*vectorstore.Pinecone, error) {
	if cfg.VectorBackend != config.BackendPinecone {
		return nil, fmt.Errorf("command needs VECTOR_BACKEND=pinecone, got %q", cfg.VectorBackend)
	}
	store, _, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	pc, ok := store.(*vectorstore.Pinecone)
	if !ok {
		return nil, errors.New("vector store is not Pinecone")
	}
	return pc, nil
}

func describeIndex(ctx context.Context, cfg *config.Config) error {
	pc, err := pinecone(cfg)
	if err != nil {
		return err
	}
	desc, err := pc.DescribeIndex(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("name=%s host=%s dimension=%d metric=%s ready=%t state=%s\n",
		desc.Name, desc.Host, desc.Dimension, desc.Metric, desc.Status.Ready, desc.Status.State)
	if desc.Dimension != cfg.VectorDimensions {
		fmt.Printf("WARNING: index dimension %d differs from VECTOR_DIM=%d\n", desc.Dimension, cfg.VectorDimensions)
	}
	return nil
}

func recreateIndex(ctx context.Context, cfg *config.Config) error {
	pc, err := pinecone(cfg)
	if err != nil {
		return err
	}
	fmt.Printf("Recreating index %s with dimension %d; all vectors will be lost...\n", cfg.PineconeIndex, cfg.VectorDimensions)
	return pc.RecreateIndex(ctx, cfg.VectorDimensions)
}

func catalogIndexes(ctx context.Context, cfg *config.Config) error {
	if cfg.MongoURI == "" {
		return errors.New("MONGO_URI is not set")
	}
	// ConnectMongoDB creates the catalog indexes as part of connecting.
	client, err := config.ConnectMongoDB(cfg)
	if err != nil {
		return err
	}
	return client.Disconnect(ctx)
}
