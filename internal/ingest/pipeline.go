package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Chunk is one window of extracted text, numbered in document order.
type Chunk struct {
	Index int
	Text  string
	Page  int
}

// Result is the outcome of running one upload through the pipeline.
type Result struct {
	MIME      string
	Extension string
	Kind      Kind
	Documents int
	Chunks    []Chunk
	Elapsed   time.Duration
}

// Pipeline sniffs, extracts and splits uploaded files.
type Pipeline struct {
	splitter *Splitter
	tempDir  string
	log      *slog.Logger
}

// NewPipeline builds a pipeline; tempDir may be empty to use the OS default.
func NewPipeline(chunkSize, overlap int, tempDir string, log *slog.Logger) (*Pipeline, error) {
	splitter, err := NewSplitter(chunkSize, overlap)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{splitter: splitter, tempDir: tempDir, log: log.With("component", "ingest")}, nil
}

// Process turns raw upload bytes into chunks. It returns ErrEmptyFile for empty
// input and an *UnsupportedTypeError when the sniffed type is not accepted.
// A supported file without extractable text yields a Result with no chunks.
func (p *Pipeline) Process(ctx context.Context, filename string, data []byte) (*Result, error) {
	start := time.Now()
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	mime := DetectMIME(data)
	ft, err := Lookup(mime)
	if err != nil {
		return nil, err
	}

	var docs []Document
	err = withTempFile(p.tempDir, ft.Extension, data, func(path string) error {
		var extractErr error
		docs, extractErr = Extract(ctx, ft.Kind, path)
		return extractErr
	})
	if err != nil {
		return nil, err
	}

	res := &Result{MIME: ft.MIME, Extension: ft.Extension, Kind: ft.Kind, Documents: len(docs)}
	for _, d := range docs {
		for _, text := range p.splitter.Split(d.Text) {
			if strings.TrimSpace(text) == "" {
				continue
			}
			res.Chunks = append(res.Chunks, Chunk{Index: len(res.Chunks), Text: text, Page: d.Page})
		}
	}
	res.Elapsed = time.Since(start)

	p.log.Debug("file processed",
		"file_name", filename,
		"mime", ft.MIME,
		"documents", res.Documents,
		"chunks", len(res.Chunks),
		"elapsed_ms", res.Elapsed.Milliseconds(),
	)
	return res, nil
}

// withTempFile writes data to a temporary file that lives only for the call to fn.
func withTempFile(dir, ext string, data []byte, fn func(path string) error) error {
	f, err := os.CreateTemp(dir, "upload-*"+ext)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	return fn(path)
}
