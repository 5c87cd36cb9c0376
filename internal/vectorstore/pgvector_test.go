package vectorstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real Postgres with the vector extension available.
func TestPGVectorRoundTrip(t *testing.T) {
	dsn := os.Getenv("POSTGRES_URL")
	if dsn == "" {
		t.Skip("POSTGRES_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	table := fmt.Sprintf("slide_chunks_test_%d", time.Now().UnixNano())
	store, err := NewPGVector(pool, table, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+store.ident())
	})

	require.NoError(t, store.EnsureIndex(ctx, 3))
	require.NoError(t, store.EnsureIndex(ctx, 3), "idempotent")
	assert.ErrorIs(t, store.EnsureIndex(ctx, 4), ErrDimensionMismatch)

	require.NoError(t, store.Upsert(ctx, []Record{
		{ID: "a", Values: []float32{1, 0, 0}, Metadata: map[string]any{"course_name": "ML"}},
		{ID: "b", Values: []float32{0, 1, 0}, Metadata: map[string]any{"course_name": "Stats"}},
	}))

	matches, err := store.Query(ctx, QueryRequest{Vector: []float32{1, 0.1, 0}, TopK: 5, IncludeValues: true})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ID)
	assert.Equal(t, []float32{1, 0, 0}, matches[0].Values)

	matches, err = store.Query(ctx, QueryRequest{Vector: []float32{1, 0, 0}, Filter: map[string]string{"course_name": "Stats"}})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b", matches[0].ID)

	recs, err := store.Fetch(ctx, []string{"b", "nope"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Stats", recs[0].Metadata["course_name"])
}

func TestParseVector(t *testing.T) {
	v, err := parseVector("[1,2.5,-3]")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2.5, -3}, v)

	_, err = parseVector("not a vector")
	assert.Error(t, err)
}
