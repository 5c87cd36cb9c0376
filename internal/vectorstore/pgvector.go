package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PGVector keeps vectors in a Postgres table with a pgvector column and
// answers queries with the cosine distance operator.
type PGVector struct {
	pool  *pgxpool.Pool
	table string
	log   *slog.Logger
}

func NewPGVector(pool *pgxpool.Pool, table string, log *slog.Logger) (*PGVector, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres pool required")
	}
	if table == "" {
		table = "slide_chunks"
	}
	if log == nil {
		log = slog.Default()
	}
	return &PGVector{pool: pool, table: table, log: log.With("client", "PGVectorStore", "table", table)}, nil
}

func (s *PGVector) ident() string { return pgx.Identifier{s.table}.Sanitize() }

func (s *PGVector) EnsureIndex(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	if _, err := s.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id         TEXT PRIMARY KEY,
		embedding  vector(%d) NOT NULL,
		metadata   JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, s.ident(), dimension)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	// vector(n) stores n as the column type modifier
	var typmod int
	err := s.pool.QueryRow(ctx,
		`SELECT atttypmod FROM pg_attribute WHERE attrelid = $1::regclass AND attname = 'embedding'`,
		s.table,
	).Scan(&typmod)
	if err != nil {
		return fmt.Errorf("read embedding dimension: %w", err)
	}
	if typmod != dimension {
		return &IndexDimensionError{Index: s.table, Want: dimension, Got: typmod}
	}

	idx := pgx.Identifier{s.table + "_embedding_idx"}.Sanitize()
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`, idx, s.ident(),
	)); err != nil {
		return fmt.Errorf("create hnsw index: %w", err)
	}

	s.log.Info("pgvector table ready", "dimension", dimension)
	return nil
}

func (s *PGVector) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (id, embedding, metadata) VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata`, s.ident())

	batch := &pgx.Batch{}
	for _, r := range records {
		meta, err := json.Marshal(nonNilMap(r.Metadata))
		if err != nil {
			return fmt.Errorf("encode metadata for %s: %w", r.ID, err)
		}
		batch.Queue(stmt, r.ID, pgvector.NewVector(r.Values), string(meta))
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

func (s *PGVector) Query(ctx context.Context, req QueryRequest) ([]Match, error) {
	if len(req.Vector) == 0 {
		return nil, fmt.Errorf("query vector required")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}
	filter, err := json.Marshal(nonNilFilter(req.Filter))
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`SELECT id, embedding::text, metadata, 1 - (embedding <=> $1) AS score
		FROM %s WHERE metadata @> $2::jsonb
		ORDER BY embedding <=> $1 LIMIT $3`, s.ident())
	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(req.Vector), string(filter), topK)
	if err != nil {
		return nil, fmt.Errorf("pgvector query: %w", err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var (
			m   Match
			vec string
		)
		if err := rows.Scan(&m.ID, &vec, &m.Metadata, &m.Score); err != nil {
			return nil, err
		}
		if req.IncludeValues {
			if m.Values, err = parseVector(vec); err != nil {
				return nil, err
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PGVector) Fetch(ctx context.Context, ids []string) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT id, embedding::text, metadata FROM %s WHERE id = ANY($1)`, s.ident()), ids)
	if err != nil {
		return nil, fmt.Errorf("pgvector fetch: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]Record, len(ids))
	for rows.Next() {
		var (
			r   Record
			vec string
		)
		if err := rows.Scan(&r.ID, &vec, &r.Metadata); err != nil {
			return nil, err
		}
		if r.Values, err = parseVector(vec); err != nil {
			return nil, err
		}
		byID[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(byID))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func parseVector(text string) ([]float32, error) {
	var v pgvector.Vector
	if err := v.Scan(text); err != nil {
		return nil, fmt.Errorf("decode vector: %w", err)
	}
	return v.Slice(), nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nonNilFilter(f map[string]string) map[string]string {
	if f == nil {
		return map[string]string{}
	}
	return f
}
