// Package vectorstore stores chunk embeddings and answers nearest-neighbour
// queries. Pinecone is the production backend; pgvector and an in-memory
// store share the same contract.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Record is one vector with its metadata.
type Record struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

// Match is a query hit; Score is cosine similarity (higher is closer).
type Match struct {
	Record
	Score float64
}

// QueryRequest asks for the TopK nearest records. Filter holds metadata
// equality constraints; an empty filter matches everything.
type QueryRequest struct {
	Vector        []float32
	TopK          int
	Filter        map[string]string
	IncludeValues bool
}

type Store interface {
	// EnsureIndex prepares the index for vectors of the given dimension.
	EnsureIndex(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, records []Record) error
	Query(ctx context.Context, req QueryRequest) ([]Match, error)
	// Fetch returns the records that exist among ids; unknown ids are skipped.
	Fetch(ctx context.Context, ids []string) ([]Record, error)
}

var (
	ErrNotFound = errors.New("vector not found")
	// ErrDimensionMismatch reports an existing index built for another vector length.
	ErrDimensionMismatch = errors.New("index dimension mismatch")
)

type IndexDimensionError struct {
	Index string
	Want  int
	Got   int
}

func (e *IndexDimensionError) Error() string {
	return fmt.Sprintf("index %q has dimension %d, expected %d", e.Index, e.Got, e.Want)
}

func (e *IndexDimensionError) Is(target error) bool { return target == ErrDimensionMismatch }

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
