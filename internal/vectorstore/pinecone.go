package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

type PineconeConfig struct {
	APIKey     string
	APIVersion string
	BaseURL    string
	Timeout    time.Duration

	IndexName string
	// IndexHost skips host discovery via describe_index when set.
	IndexHost string
	Namespace string
	Cloud     string
	Region    string
	// RecreateOnMismatch deletes and recreates an index whose dimension differs.
	RecreateOnMismatch bool

	ReadyTimeout time.Duration
	PollInterval time.Duration
}

// Pinecone talks to the Pinecone REST API: the control plane for index
// lifecycle and the index host for vector operations.
type Pinecone struct {
	cfg  PineconeConfig
	http *http.Client
	log  *slog.Logger

	mu   sync.RWMutex
	host string
}

// Fallback serverless location when the configured one is rejected.
const (
	fallbackCloud  = "gcp"
	fallbackRegion = "us-central1"
)

var errIndexNotFound = errors.New("pinecone index not found")

// HTTPError is a non-2xx answer from Pinecone.
type HTTPError struct {
	Op     string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("pinecone %s http %d: %s", e.Op, e.Status, e.Body)
}

func NewPinecone(cfg PineconeConfig, log *slog.Logger) (*Pinecone, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing Pinecone API key")
	}
	if strings.TrimSpace(cfg.IndexName) == "" {
		return nil, fmt.Errorf("missing Pinecone index name")
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = "2025-10"
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.pinecone.io"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Cloud == "" {
		cfg.Cloud = "aws"
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 2 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pinecone{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.With("client", "PineconeClient", "index", cfg.IndexName),
		host: strings.TrimSpace(cfg.IndexHost),
	}, nil
}

// -------------------- Control plane --------------------

type IndexDescription struct {
	Name      string `json:"name"`
	Host      string `json:"host"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
	Status    struct {
		Ready bool   `json:"ready"`
		State string `json:"state"`
	} `json:"status"`
}

type createIndexRequest struct {
	Name      string    `json:"name"`
	Dimension int       `json:"dimension"`
	Metric    string    `json:"metric"`
	Spec      indexSpec `json:"spec"`
}

type indexSpec struct {
	Serverless serverlessSpec `json:"serverless"`
}

type serverlessSpec struct {
	Cloud  string `json:"cloud"`
	Region string `json:"region"`
}

// EnsureIndex gets or creates the index and checks its dimension.
func (p *Pinecone) EnsureIndex(ctx context.Context, dimension int) error {
	desc, err := p.DescribeIndex(ctx)
	switch {
	case errors.Is(err, errIndexNotFound):
		p.log.Info("creating pinecone index", "dimension", dimension)
		if err := p.createIndex(ctx, dimension); err != nil {
			return err
		}
		desc, err = p.waitReady(ctx)
		if err != nil {
			return err
		}
	case err != nil:
		return err
	case desc.Dimension != dimension:
		if !p.cfg.RecreateOnMismatch {
			return &IndexDimensionError{Index: p.cfg.IndexName, Want: dimension, Got: desc.Dimension}
		}
		p.log.Warn("index dimension mismatch, recreating index", "have", desc.Dimension, "want", dimension)
		desc, err = p.recreate(ctx, dimension)
		if err != nil {
			return err
		}
	case !desc.Status.Ready:
		desc, err = p.waitReady(ctx)
		if err != nil {
			return err
		}
	}

	p.mu.Lock()
	if p.host == "" {
		p.host = desc.Host
	}
	p.mu.Unlock()

	p.log.Info("pinecone index ready", "host", desc.Host, "dimension", desc.Dimension, "metric", desc.Metric)
	return nil
}

func (p *Pinecone) DescribeIndex(ctx context.Context) (*IndexDescription, error) {
	out, err := doJSON[IndexDescription](p, ctx, "describe_index", http.MethodGet, p.controlURL(), nil)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound {
			return nil, errIndexNotFound
		}
		return nil, err
	}
	return out, nil
}

// RecreateIndex drops the index and creates it again, empty, with dimension.
func (p *Pinecone) RecreateIndex(ctx context.Context, dimension int) error {
	desc, err := p.recreate(ctx, dimension)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.host = desc.Host
	p.mu.Unlock()
	return nil
}

func (p *Pinecone) recreate(ctx context.Context, dimension int) (*IndexDescription, error) {
	if err := p.DeleteIndex(ctx); err != nil {
		return nil, err
	}
	if err := p.waitDeleted(ctx); err != nil {
		return nil, err
	}
	if err := p.createIndex(ctx, dimension); err != nil {
		return nil, err
	}
	return p.waitReady(ctx)
}

func (p *Pinecone) DeleteIndex(ctx context.Context) error {
	_, err := doJSON[struct{}](p, ctx, "delete_index", http.MethodDelete, p.controlURL(), nil)
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound {
		return nil
	}
	return err
}

func (p *Pinecone) createIndex(ctx context.Context, dimension int) error {
	req := createIndexRequest{
		Name:      p.cfg.IndexName,
		Dimension: dimension,
		Metric:    "cosine",
		Spec:      indexSpec{Serverless: serverlessSpec{Cloud: p.cfg.Cloud, Region: p.cfg.Region}},
	}
	u := strings.TrimRight(p.cfg.BaseURL, "/") + "/indexes"
	_, err := doJSON[IndexDescription](p, ctx, "create_index", http.MethodPost, u, req)
	if err == nil || isConflict(err) {
		return nil
	}
	if p.cfg.Cloud == fallbackCloud && p.cfg.Region == fallbackRegion {
		return err
	}

	p.log.Warn("create index failed, retrying in fallback region",
		"cloud", p.cfg.Cloud, "region", p.cfg.Region, "error", err)
	req.Spec.Serverless = serverlessSpec{Cloud: fallbackCloud, Region: fallbackRegion}
	_, err = doJSON[IndexDescription](p, ctx, "create_index", http.MethodPost, u, req)
	if err == nil || isConflict(err) {
		return nil
	}
	return err
}

func (p *Pinecone) waitReady(ctx context.Context) (*IndexDescription, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ReadyTimeout)
	defer cancel()
	for {
		desc, err := p.DescribeIndex(ctx)
		if err != nil && !errors.Is(err, errIndexNotFound) {
			return nil, err
		}
		if err == nil && desc.Status.Ready && desc.Host != "" {
			return desc, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for index %q to become ready: %w", p.cfg.IndexName, ctx.Err())
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

func (p *Pinecone) waitDeleted(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ReadyTimeout)
	defer cancel()
	for {
		_, err := p.DescribeIndex(ctx)
		if errors.Is(err, errIndexNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for index %q deletion: %w", p.cfg.IndexName, ctx.Err())
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

// -------------------- Data plane --------------------

type pineconeVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type upsertRequest struct {
	Vectors   []pineconeVector `json:"vectors"`
	Namespace string           `json:"namespace,omitempty"`
}

type upsertResponse struct {
	UpsertedCount int64 `json:"upsertedCount"`
}

type queryRequest struct {
	Namespace       string         `json:"namespace,omitempty"`
	Vector          []float32      `json:"vector"`
	TopK            int            `json:"topK"`
	Filter          map[string]any `json:"filter,omitempty"`
	IncludeValues   bool           `json:"includeValues"`
	IncludeMetadata bool           `json:"includeMetadata"`
}

type queryMatch struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Values   []float32      `json:"values,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type queryResponse struct {
	Matches []queryMatch `json:"matches"`
}

type fetchResponse struct {
	Vectors map[string]pineconeVector `json:"vectors"`
}

func (p *Pinecone) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	host, err := p.indexHost()
	if err != nil {
		return err
	}
	req := upsertRequest{Namespace: p.cfg.Namespace, Vectors: make([]pineconeVector, 0, len(records))}
	for _, r := range records {
		req.Vectors = append(req.Vectors, pineconeVector{ID: r.ID, Values: r.Values, Metadata: r.Metadata})
	}
	resp, err := doJSON[upsertResponse](p, ctx, "upsert", http.MethodPost, host+"/vectors/upsert", req)
	if err != nil {
		return err
	}
	if resp.UpsertedCount != int64(len(records)) {
		p.log.Warn("upsert count differs", "sent", len(records), "upserted", resp.UpsertedCount)
	}
	return nil
}

func (p *Pinecone) Query(ctx context.Context, req QueryRequest) ([]Match, error) {
	if len(req.Vector) == 0 {
		return nil, fmt.Errorf("query vector required")
	}
	host, err := p.indexHost()
	if err != nil {
		return nil, err
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}
	body := queryRequest{
		Namespace:       p.cfg.Namespace,
		Vector:          req.Vector,
		TopK:            topK,
		Filter:          pineconeFilter(req.Filter),
		IncludeValues:   req.IncludeValues,
		IncludeMetadata: true,
	}
	resp, err := doJSON[queryResponse](p, ctx, "query", http.MethodPost, host+"/query", body)
	if err != nil {
		return nil, err
	}
	out := make([]Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if strings.TrimSpace(m.ID) == "" {
			continue
		}
		out = append(out, Match{Record: Record{ID: m.ID, Values: m.Values, Metadata: m.Metadata}, Score: m.Score})
	}
	return out, nil
}

func (p *Pinecone) Fetch(ctx context.Context, ids []string) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	host, err := p.indexHost()
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	for _, id := range ids {
		q.Add("ids", id)
	}
	if p.cfg.Namespace != "" {
		q.Set("namespace", p.cfg.Namespace)
	}
	resp, err := doJSON[fetchResponse](p, ctx, "fetch", http.MethodGet, host+"/vectors/fetch?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(resp.Vectors))
	for _, id := range ids {
		if v, ok := resp.Vectors[id]; ok {
			out = append(out, Record{ID: v.ID, Values: v.Values, Metadata: v.Metadata})
		}
	}
	return out, nil
}

// pineconeFilter turns equality constraints into Pinecone's $eq form.
func pineconeFilter(filter map[string]string) map[string]any {
	if len(filter) == 0 {
		return nil
	}
	out := make(map[string]any, len(filter))
	for k, v := range filter {
		out[k] = map[string]any{"$eq": v}
	}
	return out
}

// -------------------- helpers --------------------

func (p *Pinecone) controlURL() string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + "/indexes/" + url.PathEscape(p.cfg.IndexName)
}

func (p *Pinecone) indexHost() (string, error) {
	p.mu.RLock()
	host := p.host
	p.mu.RUnlock()
	if host == "" {
		return "", fmt.Errorf("pinecone index host unknown: call EnsureIndex or set PINECONE_INDEX_HOST")
	}
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return strings.TrimRight(host, "/"), nil
	}
	return "https://" + strings.TrimRight(host, "/"), nil
}

func isConflict(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == http.StatusConflict
}

func doJSON[T any](p *Pinecone, ctx context.Context, op, method, endpoint string, body any) (*T, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Api-Key", p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Pinecone-Api-Version", p.cfg.APIVersion)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pinecone %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out T
	if len(bytes.TrimSpace(raw)) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("pinecone %s decode error: %w; raw=%s", op, err, string(raw))
	}
	return &out, nil
}
