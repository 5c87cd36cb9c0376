package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"teacher-dashboard-api/models"
	"teacher-dashboard-api/services"
	"teacher-dashboard-api/utils"
)

const (
	TaskIngestSlide = "slides:ingest"

	QueueCritical = "critical"
	QueueDefault  = "default"
)

// IngestPayload points at an upload saved under the storage directory, framed
// by utils.Frame. SlideID is chosen at enqueue time and reused by every retry.
type IngestPayload struct {
	SlideID     string `json:"slide_id,omitempty"`
	FilePath    string `json:"file_path"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SlideName   string `json:"slide_name"`
	CourseName  string `json:"course_name"`
	SubjectName string `json:"subject_name"`
	Description string `json:"description,omitempty"`
}

func NewIngestTask(p IngestPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskIngestSlide,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue(QueueCritical),
		asynq.Retention(24*time.Hour),
	), nil
}

// Uploader is the part of SlideService the worker needs.
type Uploader interface {
	Upload(ctx context.Context, req services.UploadRequest) ([]models.SlideInDB, error)
}

type TaskProcessor struct {
	uploader Uploader
	log      *slog.Logger
}

func NewTaskProcessor(uploader Uploader, log *slog.Logger) *TaskProcessor {
	if log == nil {
		log = slog.Default()
	}
	return &TaskProcessor{uploader: uploader, log: log.With("component", "ingest_worker")}
}

// Register wires the processor's handlers into mux.
func (p *TaskProcessor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskIngestSlide, p.ProcessIngest)
}

// ProcessIngest runs one queued upload. Client errors (bad form fields,
// unsupported or empty files) are not retried; the stored file is removed once
// the task cannot succeed or has succeeded.
func (p *TaskProcessor) ProcessIngest(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	log := p.log.With("file_name", payload.FileName, "file_path", payload.FilePath)

	raw, err := os.ReadFile(payload.FilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stored upload missing: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("read stored upload: %w", err)
	}
	data, err := utils.Unframe(raw)
	if err != nil {
		p.removeUpload(log, payload.FilePath)
		return fmt.Errorf("corrupt stored upload: %v: %w", err, asynq.SkipRetry)
	}

	slideID := payload.SlideID
	if slideID == "" {
		slideID, _ = asynq.GetTaskID(ctx)
	}

	log.Info("processing queued upload", "slide_id", slideID, "size", len(data))
	slides, err := p.uploader.Upload(ctx, services.UploadRequest{
		SlideID:     slideID,
		SlideName:   payload.SlideName,
		CourseName:  payload.CourseName,
		SubjectName: payload.SubjectName,
		Description: payload.Description,
		FileName:    payload.FileName,
		ContentType: payload.ContentType,
		Data:        data,
	})
	if err != nil {
		var apiErr *utils.APIError
		if errors.As(err, &apiErr) && apiErr.Status < 500 {
			p.removeUpload(log, payload.FilePath)
			return fmt.Errorf("%s: %w", apiErr.Message, asynq.SkipRetry)
		}
		return err
	}

	p.removeUpload(log, payload.FilePath)

	result := models.JobResult{TotalChunks: len(slides), VectorIDs: make([]string, 0, len(slides))}
	for _, s := range slides {
		result.VectorIDs = append(result.VectorIDs, s.VectorID)
	}
	if len(slides) > 0 {
		result.SlideID = slideIDOf(slides[0].VectorID)
		result.TotalChunks = slides[0].TotalChunks
	}
	if w := t.ResultWriter(); w != nil {
		if raw, err := json.Marshal(result); err == nil {
			if _, err := w.Write(raw); err != nil {
				log.Warn("failed to write task result", "error", err)
			}
		}
	}
	log.Info("queued upload ingested", "slide_id", result.SlideID, "stored", len(slides))
	return nil
}

func (p *TaskProcessor) removeUpload(log *slog.Logger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("failed to remove stored upload", "error", err)
	}
}

// slideIDOf strips the "_<chunk_index>" suffix of a vector id.
func slideIDOf(vectorID string) string {
	for i := len(vectorID) - 1; i >= 0; i-- {
		if vectorID[i] == '_' {
			return vectorID[:i]
		}
	}
	return vectorID
}
