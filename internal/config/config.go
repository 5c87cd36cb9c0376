package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendPinecone = "pinecone"
	BackendPGVector = "pgvector"
	BackendMemory   = "memory"
)

type Config struct {
	Port        string
	GinMode     string
	CORSOrigins []string

	// Ingestion
	MaxFileSize      int64
	MaxChunkSize     int
	ChunkOverlap     int
	FileStorageDir   string
	StorageRetention time.Duration

	// Search
	SearchDefaultLimit int
	SearchMaxLimit     int
	ListDefaultLimit   int

	// Embeddings
	GeminiAPIKey          string
	GoogleEmbeddingsModel string // e.g., "text-embedding-004"
	VectorDimensions      int
	EmbeddingsRPM         int
	EmbeddingTimeout      time.Duration

	// Vector store
	VectorBackend              string // "pinecone" (default), "pgvector", "memory"
	PineconeAPIKey             string
	PineconeIndex              string
	PineconeIndexHost          string
	PineconeNamespace          string
	PineconeCloud              string
	PineconeRegion             string
	PineconeAPIVersion         string
	PineconeBaseURL            string
	PineconeRecreateOnMismatch bool
	PostgresURL                string
	PGVectorTable              string

	// Slide catalog (MongoDB)
	CatalogEnabled bool
	MongoURI       string
	DBName         string

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	RateLimitReqs   int
	RateLimitWindow int
	QueryCacheTTL   time.Duration

	// Optional bearer auth on write routes
	JWTSecret string

	// Telemetry
	ServiceName      string
	TracingEnabled   bool
	OTLPEndpoint     string
	TraceSampleRatio float64

	WorkerConcurrency int
}

// FileConfig is the optional YAML overlay pointed to by CONFIG_FILE.
// Environment variables still win over values from the file.
type FileConfig struct {
	Ingestion struct {
		ChunkSize     int   `yaml:"chunk_size"`
		ChunkOverlap  int   `yaml:"chunk_overlap"`
		MaxFileSizeMB int64 `yaml:"max_file_size_mb"`
	} `yaml:"ingestion"`
	Search struct {
		DefaultLimit int `yaml:"default_limit"`
		MaxLimit     int `yaml:"max_limit"`
	} `yaml:"search"`
	VectorStore struct {
		Backend   string `yaml:"backend"`
		Index     string `yaml:"index"`
		Namespace string `yaml:"namespace"`
	} `yaml:"vector_store"`
	Embeddings struct {
		Model     string `yaml:"model"`
		Dimension int    `yaml:"dimension"`
	} `yaml:"embeddings"`
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	file, err := LoadFileConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	maxFileSize := int64(10 << 20)
	if file.Ingestion.MaxFileSizeMB > 0 {
		maxFileSize = file.Ingestion.MaxFileSizeMB << 20
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),

		MaxFileSize:      getEnvInt64("MAX_FILE_SIZE", maxFileSize),
		MaxChunkSize:     getEnvInt("MAX_CHUNK_SIZE", orInt(file.Ingestion.ChunkSize, 1000)),
		ChunkOverlap:     getEnvInt("CHUNK_OVERLAP", orInt(file.Ingestion.ChunkOverlap, 200)),
		FileStorageDir:   getEnv("FILE_STORAGE_DIR", "./storage"),
		StorageRetention: time.Duration(getEnvInt("STORAGE_RETENTION_HOURS", 24)) * time.Hour,

		SearchDefaultLimit: getEnvInt("SEARCH_DEFAULT_LIMIT", orInt(file.Search.DefaultLimit, 5)),
		SearchMaxLimit:     getEnvInt("SEARCH_MAX_LIMIT", orInt(file.Search.MaxLimit, 100)),
		ListDefaultLimit:   getEnvInt("LIST_DEFAULT_LIMIT", 10),

		GeminiAPIKey:          getEnv("GOOGLE_API_KEY", getEnv("GEMINI_API_KEY", "")),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", orString(file.Embeddings.Model, "text-embedding-004")),
		VectorDimensions:      getEnvInt("VECTOR_DIM", orInt(file.Embeddings.Dimension, 768)),
		EmbeddingsRPM:         getEnvInt("EMBEDDINGS_RPM", 1500),
		EmbeddingTimeout:      getEnvDuration("EMBEDDING_TIMEOUT", 30*time.Second),

		VectorBackend:              strings.ToLower(getEnv("VECTOR_BACKEND", orString(file.VectorStore.Backend, BackendPinecone))),
		PineconeAPIKey:             getEnv("PINECONE_API_KEY", ""),
		PineconeIndex:              getEnv("PINECONE_INDEX", orString(file.VectorStore.Index, "reassesment")),
		PineconeIndexHost:          getEnv("PINECONE_INDEX_HOST", ""),
		PineconeNamespace:          getEnv("PINECONE_NAMESPACE", file.VectorStore.Namespace),
		PineconeCloud:              getEnv("PINECONE_CLOUD", "aws"),
		PineconeRegion:             getEnv("PINECONE_REGION", "us-east-1"),
		PineconeAPIVersion:         getEnv("PINECONE_API_VERSION", "2025-10"),
		PineconeBaseURL:            getEnv("PINECONE_BASE_URL", "https://api.pinecone.io"),
		PineconeRecreateOnMismatch: getEnvBool("PINECONE_RECREATE_ON_MISMATCH", false),
		PostgresURL:                getEnv("POSTGRES_URL", ""),
		PGVectorTable:              getEnv("PGVECTOR_TABLE", "slide_chunks"),

		CatalogEnabled: getEnvBool("CATALOG_ENABLED", true),
		MongoURI:       getEnv("MONGO_URI", "mongodb://localhost:27017/teacher_dashboard"),
		DBName:         getEnv("DB_NAME", "teacher_dashboard"),

		// Empty REDIS_URL disables rate limiting, the query cache and async uploads
		RedisURL:      getEnv("REDIS_URL", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),
		QueryCacheTTL:   getEnvDuration("QUERY_CACHE_TTL", time.Hour),

		JWTSecret: getEnv("JWT_SECRET", ""),

		ServiceName:      getEnv("SERVICE_NAME", "teacher-dashboard-api"),
		TracingEnabled:   getEnvBool("TRACING_ENABLED", false),
		OTLPEndpoint:     getEnv("OTLP_ENDPOINT", "localhost:4317"),
		TraceSampleRatio: getEnvFloat64("TRACE_SAMPLE_RATIO", 0.1),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 10),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and the chunking window.
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GOOGLE_API_KEY (or GEMINI_API_KEY) is required - set it in .env file")
	}
	if c.MaxChunkSize <= 0 {
		return fmt.Errorf("MAX_CHUNK_SIZE must be positive, got %d", c.MaxChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.MaxChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, %d), got %d", c.MaxChunkSize, c.ChunkOverlap)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive")
	}
	if c.VectorDimensions <= 0 {
		return fmt.Errorf("VECTOR_DIM must be positive")
	}

	switch c.VectorBackend {
	case BackendPinecone:
		if c.PineconeAPIKey == "" {
			return fmt.Errorf("PINECONE_API_KEY is required - set it in .env file")
		}
		if c.PineconeIndex == "" {
			return fmt.Errorf("PINECONE_INDEX is required")
		}
	case BackendPGVector:
		if c.PostgresURL == "" {
			return fmt.Errorf("POSTGRES_URL is required when VECTOR_BACKEND=pgvector")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown VECTOR_BACKEND: %s", c.VectorBackend)
	}
	return nil
}

// AllowAllOrigins reports whether CORS is configured with the "*" wildcard.
func (c *Config) AllowAllOrigins() bool {
	for _, o := range c.CORSOrigins {
		if o == "*" {
			return true
		}
	}
	return len(c.CORSOrigins) == 0
}

// LoadFileConfig reads the YAML overlay. A blank path or missing file yields zero values.
func LoadFileConfig(path string) (*FileConfig, error) {
	var fc FileConfig
	if strings.TrimSpace(path) == "" {
		return &fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &fc, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &fc, nil
}

func orInt(v, d int) int {
	if v > 0 {
		return v
	}
	return d
}

func orString(v, d string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return d
}
