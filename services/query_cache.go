package services

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"teacher-dashboard-api/utils"
)

// EmbeddingCache stores query embeddings. Implementations fail open: a miss or
// a backend error just means the query is embedded again.
type EmbeddingCache interface {
	Get(ctx context.Context, query string) ([]float32, bool)
	Set(ctx context.Context, query string, vec []float32)
}

// RedisQueryCache keeps brotli-compressed query vectors in Redis.
type RedisQueryCache struct {
	rdb   *redis.Client
	ttl   time.Duration
	model string
	log   *slog.Logger
}

func NewRedisQueryCache(rdb *redis.Client, model string, ttl time.Duration, log *slog.Logger) *RedisQueryCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisQueryCache{rdb: rdb, ttl: ttl, model: model, log: log.With("component", "query_cache")}
}

func (c *RedisQueryCache) key(query string) string {
	return fmt.Sprintf("slides:qemb:%s:%s", c.model, utils.ContentHash([]byte(query)))
}

func (c *RedisQueryCache) Get(ctx context.Context, query string) ([]float32, bool) {
	ctx, cancel := utils.WithShortTimeout(ctx)
	defer cancel()

	raw, err := c.rdb.Get(ctx, c.key(query)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug("query cache get failed", "error", err)
		}
		return nil, false
	}
	vec, err := decodeVector(raw)
	if err != nil {
		c.log.Debug("query cache entry unreadable", "error", err)
		return nil, false
	}
	return vec, true
}

func (c *RedisQueryCache) Set(ctx context.Context, query string, vec []float32) {
	raw, err := encodeVector(vec)
	if err != nil {
		return
	}
	ctx, cancel := utils.WithShortTimeout(ctx)
	defer cancel()
	if err := c.rdb.Set(ctx, c.key(query), raw, c.ttl).Err(); err != nil {
		c.log.Debug("query cache set failed", "error", err)
	}
}

// encodeVector packs float32s little-endian and frames them with brotli.
func encodeVector(vec []float32) ([]byte, error) {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return utils.Frame(buf, utils.CompressionBrotli)
}

func decodeVector(raw []byte) ([]float32, error) {
	buf, err := utils.Unframe(raw)
	if err != nil {
		return nil, err
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("vector payload has %d bytes", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}
