package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"teacher-dashboard-api/internal/ai"
	"teacher-dashboard-api/internal/catalog"
	"teacher-dashboard-api/internal/config"
	"teacher-dashboard-api/internal/ingest"
	"teacher-dashboard-api/internal/telemetry"
	"teacher-dashboard-api/internal/vectorstore"
	"teacher-dashboard-api/models"
	"teacher-dashboard-api/utils"
)

var tracer = otel.Tracer("teacher-dashboard-api/services")

func noContentError() *utils.APIError {
	return utils.BadRequest("no_content",
		"No valid content could be extracted from the file. Please check if the file format is supported.")
}

// UploadRequest is one slide file plus the form fields that describe it.
type UploadRequest struct {
	SlideName   string
	CourseName  string
	SubjectName string
	Description string
	FileName    string
	ContentType string
	Data        []byte
	// SlideID fixes the vector id prefix so a retried upload overwrites its
	// earlier chunks. A new id is generated when empty.
	SlideID string
}

type SearchRequest struct {
	Query   string
	Limit   int
	Course  string
	Subject string
}

type ListRequest struct {
	Course  string
	Subject string
	Limit   int
	Offset  int
}

// SlideDeps are the collaborators of SlideService. Catalog, Cache and Metrics
// are optional.
type SlideDeps struct {
	Pipeline *ingest.Pipeline
	Embedder ai.Embedder
	Store    vectorstore.Store
	Catalog  catalog.Catalog
	Cache    EmbeddingCache
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
}

// SlideService runs uploads through extraction, embedding and the vector index,
// and answers search, list and get requests.
type SlideService struct {
	maxFileSize        int64
	searchDefaultLimit int
	searchMaxLimit     int
	listDefaultLimit   int

	pipeline *ingest.Pipeline
	embedder ai.Embedder
	store    vectorstore.Store
	catalog  catalog.Catalog
	cache    EmbeddingCache
	metrics  *telemetry.Metrics
	log      *slog.Logger

	newID func() string
	now   func() time.Time
}

func NewSlideService(cfg *config.Config, deps SlideDeps) (*SlideService, error) {
	if deps.Pipeline == nil || deps.Embedder == nil || deps.Store == nil {
		return nil, fmt.Errorf("slide service requires pipeline, embedder and vector store")
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &SlideService{
		maxFileSize:        cfg.MaxFileSize,
		searchDefaultLimit: cfg.SearchDefaultLimit,
		searchMaxLimit:     cfg.SearchMaxLimit,
		listDefaultLimit:   cfg.ListDefaultLimit,
		pipeline:           deps.Pipeline,
		embedder:           deps.Embedder,
		store:              deps.Store,
		catalog:            deps.Catalog,
		cache:              deps.Cache,
		metrics:            deps.Metrics,
		log:                log.With("service", "slides"),
		newID:              uuid.NewString,
		now:                func() time.Time { return time.Now().UTC() },
	}, nil
}

// Upload ingests one file. Each chunk is embedded and upserted on its own; a
// chunk whose embedding or upsert fails is skipped. A dimension mismatch aborts
// the whole upload.
func (s *SlideService) Upload(ctx context.Context, req UploadRequest) ([]models.SlideInDB, error) {
	ctx, span := tracer.Start(ctx, "slides.upload")
	defer span.End()
	start := time.Now()

	if strings.TrimSpace(req.SlideName) == "" || strings.TrimSpace(req.CourseName) == "" || strings.TrimSpace(req.SubjectName) == "" {
		return nil, utils.BadRequest("validation_error", "Slide name, course name, and subject name are required")
	}
	if len(req.Data) == 0 {
		return nil, utils.BadRequest("empty_file", "File is empty")
	}
	if s.maxFileSize > 0 && int64(len(req.Data)) > s.maxFileSize {
		return nil, utils.FileTooLarge(int64(len(req.Data)), s.maxFileSize)
	}

	result, err := s.pipeline.Process(ctx, req.FileName, req.Data)
	if err != nil {
		var unsupported *ingest.UnsupportedTypeError
		switch {
		case errors.As(err, &unsupported):
			return nil, utils.BadRequest("unsupported_file_type", fmt.Sprintf(
				"Unsupported file type: %s. Supported types: %s",
				unsupported.MIME, strings.Join(ingest.SupportedMIMETypes(), ", ")))
		case errors.Is(err, ingest.ErrEmptyFile):
			return nil, utils.BadRequest("empty_file", "File is empty")
		case ctx.Err() != nil:
			return nil, utils.Internal("Upload cancelled", err)
		default:
			// Unreadable files of a supported type count as having no content.
			s.log.Warn("file extraction failed", "file_name", req.FileName, "error", err)
			return nil, noContentError()
		}
	}
	span.SetAttributes(
		attribute.String("file.mime", result.MIME),
		attribute.Int("file.chunks", len(result.Chunks)),
	)
	if len(result.Chunks) == 0 {
		return nil, noContentError()
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = models.DefaultContentType
	}
	slideID := strings.TrimSpace(req.SlideID)
	if slideID == "" {
		slideID = s.newID()
	}
	fileHash := utils.ContentHash(req.Data)
	now := s.now()
	total := len(result.Chunks)

	stored := make([]models.SlideInDB, 0, total)
	for _, ch := range result.Chunks {
		if err := ctx.Err(); err != nil {
			return nil, utils.Internal("Upload cancelled", err)
		}

		vectorID := fmt.Sprintf("%s_%d", slideID, ch.Index)
		vec, err := s.embed(ctx, "RETRIEVAL_DOCUMENT", ch.Text, s.embedder.EmbedDocument)
		if err != nil {
			if errors.Is(err, ai.ErrDimensionMismatch) {
				s.log.Error("embedding dimension mismatch", "error", err)
				return nil, utils.Internal("Embedding dimension mismatch", err)
			}
			s.log.Warn("skipping chunk: embedding failed", "vector_id", vectorID, "error", err)
			continue
		}

		rec := models.SlideInDB{
			Slide: models.Slide{
				SlideBase: models.SlideBase{
					SlideName:   models.PartLabel(req.SlideName, ch.Index),
					CourseName:  req.CourseName,
					SubjectName: req.SubjectName,
					Description: models.PartDescription(req.Description, ch.Index, total),
				},
				ID:          vectorID,
				CreatedAt:   now,
				UpdatedAt:   now,
				FileName:    req.FileName,
				ContentType: contentType,
			},
			ChunkIndex:  ch.Index,
			TotalChunks: total,
			VectorID:    vectorID,
			Text:        ch.Text,
			Page:        ch.Page,
			FileHash:    fileHash,
			Embedding:   vec,
		}

		err = s.store.Upsert(ctx, []vectorstore.Record{{ID: vectorID, Values: vec, Metadata: rec.Metadata()}})
		if err != nil {
			if errors.Is(err, vectorstore.ErrDimensionMismatch) {
				return nil, utils.Internal("Vector index dimension mismatch", err)
			}
			s.log.Warn("skipping chunk: upsert failed", "vector_id", vectorID, "error", err)
			continue
		}
		stored = append(stored, rec)
	}

	s.metrics.RecordUpload(ctx, string(result.Kind), len(stored), total-len(stored), time.Since(start))
	if len(stored) == 0 {
		return nil, utils.BadRequest("processing_failed",
			"Failed to process any valid chunks from the file. Please check the file content and try again.")
	}

	s.saveToCatalog(ctx, stored)
	s.log.Info("slide ingested",
		"slide_id", slideID,
		"file_name", req.FileName,
		"mime", result.MIME,
		"chunks", total,
		"stored", len(stored),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return stored, nil
}

func (s *SlideService) saveToCatalog(ctx context.Context, chunks []models.SlideInDB) {
	if s.catalog == nil {
		return
	}
	ctx, cancel := utils.Detached(ctx, utils.DefaultTimeout)
	defer cancel()
	if err := s.catalog.Save(ctx, chunks); err != nil {
		s.log.Warn("catalog write failed", "chunks", len(chunks), "error", err)
	}
}

// Search embeds the query and returns the closest chunks with their scores.
func (s *SlideService) Search(ctx context.Context, req SearchRequest) ([]models.SlideInDB, error) {
	ctx, span := tracer.Start(ctx, "slides.search")
	defer span.End()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, utils.BadRequest("validation_error", "Query parameter is required")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.searchDefaultLimit
	}
	if s.searchMaxLimit > 0 && limit > s.searchMaxLimit {
		limit = s.searchMaxLimit
	}

	vec, cached, err := s.queryVector(ctx, query)
	if err != nil {
		if errors.Is(err, ai.ErrDimensionMismatch) {
			return nil, utils.Internal("Embedding dimension mismatch", err)
		}
		s.log.Error("query embedding failed", "error", err)
		return nil, utils.Internal("Error searching slides", err)
	}

	filter := map[string]string{}
	if req.Course != "" {
		filter["course_name"] = req.Course
	}
	if req.Subject != "" {
		filter["subject_name"] = req.Subject
	}

	matches, err := s.store.Query(ctx, vectorstore.QueryRequest{
		Vector:        vec,
		TopK:          limit,
		Filter:        filter,
		IncludeValues: true,
	})
	if err != nil {
		s.log.Error("vector query failed", "error", err)
		return nil, utils.Internal("Error searching slides", err)
	}

	out := make([]models.SlideInDB, 0, len(matches))
	for _, m := range matches {
		slide := models.SlideFromMetadata(m.ID, m.Metadata, m.Values)
		score := m.Score
		slide.Score = &score
		out = append(out, slide)
	}
	s.metrics.RecordSearch(ctx, cached, len(out))
	span.SetAttributes(attribute.Int("search.results", len(out)), attribute.Bool("cache.hit", cached))
	return out, nil
}

func (s *SlideService) queryVector(ctx context.Context, query string) ([]float32, bool, error) {
	if s.cache != nil {
		if vec, ok := s.cache.Get(ctx, query); ok && len(vec) == s.embedder.Dimension() {
			return vec, true, nil
		}
	}
	vec, err := s.embed(ctx, "RETRIEVAL_QUERY", query, s.embedder.EmbedQuery)
	if err != nil {
		return nil, false, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, query, vec)
	}
	return vec, false, nil
}

func (s *SlideService) embed(ctx context.Context, taskType, text string, fn func(context.Context, string) ([]float32, error)) ([]float32, error) {
	start := time.Now()
	vec, err := fn(ctx, text)
	s.metrics.RecordEmbedding(ctx, taskType, time.Since(start), err)
	return vec, err
}

// List pages through the catalog. Without a catalog it returns an empty page.
func (s *SlideService) List(ctx context.Context, req ListRequest) (*models.SlideList, error) {
	if req.Offset < 0 {
		return nil, utils.BadRequest("validation_error", "offset must be zero or greater")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.listDefaultLimit
	}
	page := &models.SlideList{Items: []models.SlideInDB{}, Limit: limit, Offset: req.Offset}
	if s.catalog == nil {
		return page, nil
	}

	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()
	items, total, err := s.catalog.List(ctx, catalog.Filter{
		Course:  req.Course,
		Subject: req.Subject,
		Limit:   limit,
		Offset:  req.Offset,
	})
	if err != nil {
		s.log.Error("catalog list failed", "error", err)
		return nil, utils.Internal("Error listing slides", err)
	}
	page.Items = items
	page.Total = total
	return page, nil
}

// Get fetches one chunk by its vector id.
func (s *SlideService) Get(ctx context.Context, id string) (*models.SlideInDB, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, utils.NotFound("Slide not found")
	}
	recs, err := s.store.Fetch(ctx, []string{id})
	if err != nil {
		s.log.Error("vector fetch failed", "id", id, "error", err)
		return nil, utils.Internal("Error retrieving slide", err)
	}
	if len(recs) == 0 {
		return nil, utils.NotFound("Slide not found")
	}
	slide := models.SlideFromMetadata(recs[0].ID, recs[0].Metadata, recs[0].Values)
	return &slide, nil
}
