package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"
)

// ErrEmptyEmbedding is returned when the API answers without vector values.
var ErrEmptyEmbedding = errors.New("no embedding returned")

type GeminiOptions struct {
	APIKey    string
	Model     string // e.g. "text-embedding-004"
	Dimension int
	RPM       int
	Timeout   time.Duration
}

type embedFunc func(ctx context.Context, taskType genai.TaskType, text string) ([]float32, error)

// GeminiEmbedder calls the Google Generative AI embedding endpoint behind a
// circuit breaker and a client-side rate limiter.
type GeminiEmbedder struct {
	client      *genai.Client
	model       string
	dimension   int
	timeout     time.Duration
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
	embed       embedFunc
	log         *slog.Logger
}

func NewGeminiEmbedder(ctx context.Context, opts GeminiOptions, log *slog.Logger) (*GeminiEmbedder, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("missing GOOGLE_API_KEY for embeddings")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, err
	}

	e := newGeminiEmbedder(opts, nil, log)
	e.client = client
	e.embed = e.embedContent
	return e, nil
}

func newGeminiEmbedder(opts GeminiOptions, embed embedFunc, log *slog.Logger) *GeminiEmbedder {
	if log == nil {
		log = slog.Default()
	}
	if opts.Model == "" {
		opts.Model = "text-embedding-004"
	}
	if opts.RPM <= 0 {
		opts.RPM = 1500
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	log = log.With("component", "gemini_embedder", "model", opts.Model)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiEmbeddings",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				log.Error("circuit breaker opened, embeddings degraded", "breaker", name, "from", from.String())
				return
			}
			log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	// RPM limit with some buffer
	burst := opts.RPM / 10
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(float64(opts.RPM)*0.9/60.0), burst)

	return &GeminiEmbedder{
		model:       opts.Model,
		dimension:   opts.Dimension,
		timeout:     opts.Timeout,
		breaker:     breaker,
		rateLimiter: limiter,
		embed:       embed,
		log:         log,
	}
}

func (g *GeminiEmbedder) Dimension() int { return g.dimension }

func (g *GeminiEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return g.do(ctx, genai.TaskTypeRetrievalDocument, text)
}

func (g *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return g.do(ctx, genai.TaskTypeRetrievalQuery, text)
}

func (g *GeminiEmbedder) do(ctx context.Context, taskType genai.TaskType, text string) ([]float32, error) {
	tracer := otel.Tracer("gemini-embedder")
	ctx, span := tracer.Start(ctx, "gemini.embed_content")
	defer span.End()

	span.SetAttributes(
		attribute.String("gemini.model", g.model),
		attribute.String("gemini.task_type", taskType.String()),
		attribute.Int("gemini.text_length", len(text)),
	)

	if err := g.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return nil, err
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.embed(callCtx, taskType, text)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, fmt.Errorf("embed content: %w", err)
	}

	vec := result.([]float32)
	if err := CheckDimension(vec, g.dimension); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dimension mismatch")
		return nil, err
	}
	span.SetAttributes(attribute.Int("gemini.dimension", len(vec)))
	return vec, nil
}

func (g *GeminiEmbedder) embedContent(ctx context.Context, taskType genai.TaskType, text string) ([]float32, error) {
	model := g.client.EmbeddingModel(g.model)
	model.TaskType = taskType

	resp, err := model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, ErrEmptyEmbedding
	}
	// genai SDK returns []float32 for Embedding.Values
	return resp.Embedding.Values, nil
}

// Close the client
func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
