package ai

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEmbed struct {
	mu        sync.Mutex
	calls     int
	taskTypes []genai.TaskType
	dim       int
	err       error
}

func (r *recordingEmbed) fn(_ context.Context, taskType genai.TaskType, _ string) ([]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.taskTypes = append(r.taskTypes, taskType)
	if r.err != nil {
		return nil, r.err
	}
	return make([]float32, r.dim), nil
}

func testOptions(dim int) GeminiOptions {
	return GeminiOptions{Model: "text-embedding-004", Dimension: dim, RPM: 600000}
}

func TestGeminiEmbedderTaskTypes(t *testing.T) {
	rec := &recordingEmbed{dim: 768}
	e := newGeminiEmbedder(testOptions(768), rec.fn, nil)

	vec, err := e.EmbedDocument(context.Background(), "chunk text")
	require.NoError(t, err)
	assert.Len(t, vec, 768)

	_, err = e.EmbedQuery(context.Background(), "what is a gradient?")
	require.NoError(t, err)

	assert.Equal(t, []genai.TaskType{genai.TaskTypeRetrievalDocument, genai.TaskTypeRetrievalQuery}, rec.taskTypes)
	assert.Equal(t, 768, e.Dimension())
}

func TestGeminiEmbedderDimensionMismatch(t *testing.T) {
	rec := &recordingEmbed{dim: 512}
	e := newGeminiEmbedder(testOptions(768), rec.fn, nil)

	_, err := e.EmbedDocument(context.Background(), "chunk")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))

	var dimErr *DimensionError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 768, dimErr.Want)
	assert.Equal(t, 512, dimErr.Got)

	err = VerifyDimension(context.Background(), e)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestVerifyDimensionOK(t *testing.T) {
	rec := &recordingEmbed{dim: 768}
	e := newGeminiEmbedder(testOptions(768), rec.fn, nil)

	require.NoError(t, VerifyDimension(context.Background(), e))
	assert.Equal(t, []genai.TaskType{genai.TaskTypeRetrievalQuery}, rec.taskTypes)
}

func TestGeminiEmbedderBreakerOpens(t *testing.T) {
	rec := &recordingEmbed{err: errors.New("upstream 503")}
	e := newGeminiEmbedder(testOptions(768), rec.fn, nil)

	for i := 0; i < 3; i++ {
		_, err := e.EmbedDocument(context.Background(), "chunk")
		require.Error(t, err)
	}
	_, err := e.EmbedDocument(context.Background(), "chunk")
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, rec.calls, "open breaker must short-circuit the call")
}

func TestGeminiEmbedderCancelledContext(t *testing.T) {
	rec := &recordingEmbed{dim: 768}
	e := newGeminiEmbedder(GeminiOptions{Dimension: 768, RPM: 1}, rec.fn, nil)

	// Drain the single burst token so the next call has to wait
	_, err := e.EmbedQuery(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.EmbedQuery(ctx, "second")
	assert.Error(t, err)
	assert.Equal(t, 1, rec.calls)
}

func TestGeminiEmbeddingLive(t *testing.T) {
	key := os.Getenv("GOOGLE_API_KEY")
	if key == "" {
		key = os.Getenv("GEMINI_API_KEY")
	}
	if key == "" {
		t.Skip("GOOGLE_API_KEY not set")
	}
	e, err := NewGeminiEmbedder(context.Background(), GeminiOptions{APIKey: key, Dimension: 768}, nil)
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, VerifyDimension(context.Background(), e))
}
