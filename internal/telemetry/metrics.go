package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "teacher-dashboard-api"

// Metrics holds the application instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	RequestCounter   metric.Int64Counter
	RequestDuration  metric.Float64Histogram
	ChunksIngested   metric.Int64Counter
	ChunksSkipped    metric.Int64Counter
	UploadDuration   metric.Float64Histogram
	EmbeddingLatency metric.Float64Histogram
	SearchRequests   metric.Int64Counter
}

func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.RequestCounter, err = meter.Int64Counter("http.requests.total",
		metric.WithDescription("Total HTTP requests")); err != nil {
		return nil, err
	}
	if m.RequestDuration, err = meter.Float64Histogram("http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.ChunksIngested, err = meter.Int64Counter("slides.chunks.ingested",
		metric.WithDescription("Chunks embedded and written to the vector index")); err != nil {
		return nil, err
	}
	if m.ChunksSkipped, err = meter.Int64Counter("slides.chunks.skipped",
		metric.WithDescription("Chunks dropped after an embedding or upsert failure")); err != nil {
		return nil, err
	}
	if m.UploadDuration, err = meter.Float64Histogram("slides.upload.duration",
		metric.WithDescription("End-to-end upload processing time in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.EmbeddingLatency, err = meter.Float64Histogram("gemini.embed.duration",
		metric.WithDescription("Embedding call latency in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.SearchRequests, err = meter.Int64Counter("slides.search.total",
		metric.WithDescription("Semantic search requests")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) RecordRequest(ctx context.Context, method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.String("http.status", status),
	)
	m.RequestCounter.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordUpload records how many chunks of one upload made it into the index.
func (m *Metrics) RecordUpload(ctx context.Context, kind string, ingested, skipped int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("file.kind", kind))
	m.ChunksIngested.Add(ctx, int64(ingested), attrs)
	m.ChunksSkipped.Add(ctx, int64(skipped), attrs)
	m.UploadDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *Metrics) RecordEmbedding(ctx context.Context, taskType string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.EmbeddingLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("gemini.task_type", taskType),
		attribute.Bool("success", err == nil),
	))
}

func (m *Metrics) RecordSearch(ctx context.Context, cached bool, results int) {
	if m == nil {
		return
	}
	m.SearchRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("cache.hit", cached),
		attribute.Int("results", results),
	))
}
