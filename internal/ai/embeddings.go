package ai

import (
	"context"
	"errors"
	"fmt"
)

// Embedder turns text into fixed-length vectors. Documents and queries use
// different task types so retrieval pairs them asymmetrically.
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// ErrDimensionMismatch means the model and the vector index disagree on vector
// length. It is a configuration error: nothing written with the wrong length
// could ever be searched.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", e.Want, e.Got)
}

func (e *DimensionError) Is(target error) bool { return target == ErrDimensionMismatch }

// CheckDimension validates a vector against the expected length.
func CheckDimension(vec []float32, want int) error {
	if len(vec) != want {
		return &DimensionError{Want: want, Got: len(vec)}
	}
	return nil
}

// VerifyDimension embeds a probe string and compares the result with e.Dimension().
// Callers treat a failure as fatal at startup.
func VerifyDimension(ctx context.Context, e Embedder) error {
	vec, err := e.EmbedQuery(ctx, "test")
	if err != nil {
		return fmt.Errorf("embedding probe failed: %w", err)
	}
	return CheckDimension(vec, e.Dimension())
}
