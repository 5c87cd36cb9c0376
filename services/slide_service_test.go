package services

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teacher-dashboard-api/internal/ai"
	"teacher-dashboard-api/internal/catalog"
	"teacher-dashboard-api/internal/config"
	"teacher-dashboard-api/internal/ingest"
	"teacher-dashboard-api/internal/vectorstore"
	"teacher-dashboard-api/utils"
)

const testDim = 8

type fakeEmbedder struct {
	mu         sync.Mutex
	dim        int
	wrongDim   bool
	docCalls   int
	queryCalls int
}

func (f *fakeEmbedder) vector(text string) ([]float32, error) {
	if strings.Contains(text, "FAIL") {
		return nil, errors.New("gemini: 503 unavailable")
	}
	n := f.dim
	if f.wrongDim {
		n = f.dim + 1
	}
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, n)
	for i := range vec {
		vec[i] = float32(sum[i])/255 + 0.01
	}
	if f.wrongDim {
		return nil, ai.CheckDimension(vec, f.dim)
	}
	return vec, nil
}

func (f *fakeEmbedder) EmbedDocument(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.docCalls++
	f.mu.Unlock()
	return f.vector(text)
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.queryCalls++
	f.mu.Unlock()
	return f.vector(text)
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

// failingStore rejects upserts for the listed vector ids.
type failingStore struct {
	*vectorstore.Memory
	reject map[string]bool
}

func (s *failingStore) Upsert(ctx context.Context, records []vectorstore.Record) error {
	for _, r := range records {
		if s.reject[r.ID] {
			return errors.New("pinecone upsert http 500")
		}
	}
	return s.Memory.Upsert(ctx, records)
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]float32
	hits int
}

func (c *mapCache) Get(_ context.Context, q string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[q]
	if ok {
		c.hits++
	}
	return v, ok
}

func (c *mapCache) Set(_ context.Context, q string, v []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[q] = v
}

type fixture struct {
	svc      *SlideService
	embedder *fakeEmbedder
	store    *vectorstore.Memory
	catalog  *catalog.Memory
	cache    *mapCache
}

func newFixture(t *testing.T, store vectorstore.Store) *fixture {
	t.Helper()
	cfg := &config.Config{
		MaxFileSize:        1 << 20,
		SearchDefaultLimit: 5,
		SearchMaxLimit:     100,
		ListDefaultLimit:   10,
	}
	pipeline, err := ingest.NewPipeline(50, 10, t.TempDir(), nil)
	require.NoError(t, err)

	mem := vectorstore.NewMemory()
	require.NoError(t, mem.EnsureIndex(context.Background(), testDim))
	if store == nil {
		store = mem
	} else if fs, ok := store.(*failingStore); ok {
		fs.Memory = mem
	}

	f := &fixture{
		embedder: &fakeEmbedder{dim: testDim},
		store:    mem,
		catalog:  catalog.NewMemory(),
		cache:    &mapCache{data: map[string][]float32{}},
	}
	f.svc, err = NewSlideService(cfg, SlideDeps{
		Pipeline: pipeline,
		Embedder: f.embedder,
		Store:    store,
		Catalog:  f.catalog,
		Cache:    f.cache,
	})
	require.NoError(t, err)
	f.svc.newID = func() string { return "slide-1" }
	f.svc.now = func() time.Time { return time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

var lecture = strings.Join([]string{
	"Alpha topic covers linear regression.",
	"Beta topic covers decision trees.",
	"Gamma topic covers neural networks.",
}, "\n\n")

func upload(data string) UploadRequest {
	return UploadRequest{
		SlideName:   "Week 1",
		CourseName:  "ML",
		SubjectName: "Supervised",
		Description: "Intro lecture",
		FileName:    "week1.txt",
		Data:        []byte(data),
	}
}

func requireAPIError(t *testing.T, err error, status int, code string) *utils.APIError {
	t.Helper()
	var apiErr *utils.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, status, apiErr.Status)
	assert.Equal(t, code, apiErr.Code)
	return apiErr
}

func TestUploadStoresEveryChunk(t *testing.T) {
	f := newFixture(t, nil)

	slides, err := f.svc.Upload(context.Background(), upload(lecture))
	require.NoError(t, err)
	require.Len(t, slides, 3)

	for i, s := range slides {
		assert.Equal(t, fmt.Sprintf("slide-1_%d", i), s.ID)
		assert.Equal(t, s.ID, s.VectorID)
		assert.Equal(t, fmt.Sprintf("Week 1 (Part %d)", i+1), s.SlideName)
		assert.Equal(t, fmt.Sprintf("Intro lecture [Part %d of 3]", i+1), s.Description)
		assert.Equal(t, i, s.ChunkIndex)
		assert.Equal(t, 3, s.TotalChunks)
		assert.Equal(t, "application/octet-stream", s.ContentType)
		assert.Len(t, s.Embedding, testDim)
		assert.Len(t, s.FileHash, 64)
	}
	assert.Equal(t, "Beta topic covers decision trees.", slides[1].Text)
	assert.Equal(t, 3, f.store.Len())

	recs, err := f.store.Fetch(context.Background(), []string{"slide-1_2"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Week 1 (Part 3)", recs[0].Metadata["slide_name"])
	assert.Equal(t, "Intro lecture [Part 3 of 3]", recs[0].Metadata["description"])
	assert.Equal(t, "2025-09-01T12:00:00Z", recs[0].Metadata["created_at"])

	listed, total, err := f.catalog.List(context.Background(), catalog.Filter{Course: "ML"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, listed, 3)
}

func TestUploadValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	missing := upload(lecture)
	missing.CourseName = "  "
	_, err := f.svc.Upload(ctx, missing)
	apiErr := requireAPIError(t, err, http.StatusBadRequest, "validation_error")
	assert.Equal(t, "Slide name, course name, and subject name are required", apiErr.Message)

	_, err = f.svc.Upload(ctx, upload(""))
	requireAPIError(t, err, http.StatusBadRequest, "empty_file")

	_, err = f.svc.Upload(ctx, upload(strings.Repeat("a", 2<<20)))
	apiErr = requireAPIError(t, err, http.StatusBadRequest, "file_too_large")
	assert.Equal(t, "File size (2.00MB) exceeds maximum allowed size of 1.0MB", apiErr.Message)

	png := "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00"
	_, err = f.svc.Upload(ctx, upload(png))
	apiErr = requireAPIError(t, err, http.StatusBadRequest, "unsupported_file_type")
	assert.Contains(t, apiErr.Message, "Unsupported file type: image/png")
	assert.Contains(t, apiErr.Message, "text/plain")

	_, err = f.svc.Upload(ctx, upload("   \n\n   \n"))
	apiErr = requireAPIError(t, err, http.StatusBadRequest, "no_content")
	assert.True(t, strings.HasPrefix(apiErr.Message, "No valid content could be extracted from the file."))

	assert.Zero(t, f.store.Len())
}

func TestUploadUnreadableFileHasNoContent(t *testing.T) {
	f := newFixture(t, nil)
	broken := upload("%PDF-1.4\nthis is not really a pdf body, just text after the header")
	broken.FileName = "broken.pdf"

	_, err := f.svc.Upload(context.Background(), broken)
	apiErr := requireAPIError(t, err, http.StatusBadRequest, "no_content")
	assert.Equal(t, "No valid content could be extracted from the file. Please check if the file format is supported.", apiErr.Message)
	assert.Zero(t, f.embedder.docCalls)
}

func TestUploadReusesGivenSlideID(t *testing.T) {
	f := newFixture(t, nil)
	req := upload(lecture)
	req.SlideID = "job-42"

	for i := 0; i < 2; i++ {
		slides, err := f.svc.Upload(context.Background(), req)
		require.NoError(t, err)
		require.Len(t, slides, 3)
		assert.Equal(t, "job-42_0", slides[0].ID)
	}
	assert.Equal(t, 3, f.store.Len(), "second upload overwrites the first")
}

func TestUploadSkipsChunksThatFailToEmbed(t *testing.T) {
	f := newFixture(t, nil)
	text := strings.Join([]string{
		"Alpha topic covers linear regression.",
		"FAIL this chunk cannot be embedded.",
		"Gamma topic covers neural networks.",
	}, "\n\n")

	slides, err := f.svc.Upload(context.Background(), upload(text))
	require.NoError(t, err)
	require.Len(t, slides, 2)
	assert.Equal(t, "slide-1_0", slides[0].ID)
	assert.Equal(t, "slide-1_2", slides[1].ID)
	assert.Equal(t, "Intro lecture [Part 3 of 3]", slides[1].Description)
	assert.Equal(t, 2, f.store.Len())
}

func TestUploadSkipsChunksThatFailToUpsert(t *testing.T) {
	store := &failingStore{reject: map[string]bool{"slide-1_1": true}}
	f := newFixture(t, store)

	slides, err := f.svc.Upload(context.Background(), upload(lecture))
	require.NoError(t, err)
	require.Len(t, slides, 2)
	assert.Equal(t, []string{"slide-1_0", "slide-1_2"}, []string{slides[0].ID, slides[1].ID})
}

func TestUploadFailsWhenNoChunkSurvives(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Upload(context.Background(), upload("FAIL one.\n\nFAIL two."))
	apiErr := requireAPIError(t, err, http.StatusBadRequest, "processing_failed")
	assert.True(t, strings.HasPrefix(apiErr.Message, "Failed to process any valid chunks from the file."))

	items, total, err := f.catalog.List(context.Background(), catalog.Filter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, items)
}

func TestUploadAbortsOnDimensionMismatch(t *testing.T) {
	f := newFixture(t, nil)
	f.embedder.wrongDim = true

	_, err := f.svc.Upload(context.Background(), upload(lecture))
	requireAPIError(t, err, http.StatusInternalServerError, "internal_error")
	assert.ErrorIs(t, err, ai.ErrDimensionMismatch)
	assert.Equal(t, 1, f.embedder.docCalls, "no further chunks after a mismatch")
	assert.Zero(t, f.store.Len())
}

func TestSearch(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.Upload(ctx, upload(lecture))
	require.NoError(t, err)

	results, err := f.svc.Search(ctx, SearchRequest{Query: "Beta topic covers decision trees."})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "slide-1_1", results[0].ID)
	require.NotNil(t, results[0].Score)
	assert.InDelta(t, 1.0, *results[0].Score, 1e-6)
	assert.Len(t, results[0].Embedding, testDim)
	assert.Equal(t, "Week 1 (Part 2)", results[0].SlideName)

	results, err = f.svc.Search(ctx, SearchRequest{Query: "Beta topic covers decision trees.", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 1, f.embedder.queryCalls, "second search served from cache")
	assert.Equal(t, 1, f.cache.hits)

	results, err = f.svc.Search(ctx, SearchRequest{Query: "trees", Course: "History"})
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = f.svc.Search(ctx, SearchRequest{Query: "   "})
	requireAPIError(t, err, http.StatusBadRequest, "validation_error")
}

func TestListAndGet(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.Upload(ctx, upload(lecture))
	require.NoError(t, err)

	page, err := f.svc.List(ctx, ListRequest{Course: "ML", Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "slide-1_1", page.Items[0].ID)

	page, err = f.svc.List(ctx, ListRequest{Subject: "Unsupervised"})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 10, page.Limit)

	_, err = f.svc.List(ctx, ListRequest{Offset: -1})
	requireAPIError(t, err, http.StatusBadRequest, "validation_error")

	got, err := f.svc.Get(ctx, "slide-1_0")
	require.NoError(t, err)
	assert.Equal(t, "Week 1 (Part 1)", got.SlideName)
	assert.Equal(t, "Alpha topic covers linear regression.", got.Text)

	_, err = f.svc.Get(ctx, "missing_0")
	requireAPIError(t, err, http.StatusNotFound, "not_found")
}

func TestListWithoutCatalog(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.catalog = nil

	page, err := f.svc.List(context.Background(), ListRequest{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Zero(t, page.Total)
}
