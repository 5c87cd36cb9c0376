package models

import "time"

// IngestJob reports the state of a queued upload.
type IngestJob struct {
	TaskID      string     `json:"task_id"`
	Queue       string     `json:"queue"`
	State       string     `json:"state"` // pending, active, scheduled, retry, archived, completed
	Retried     int        `json:"retried"`
	MaxRetry    int        `json:"max_retry"`
	LastError   string     `json:"last_error,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      *JobResult `json:"result,omitempty"`
}

// JobResult is written by the worker when ingestion finishes.
type JobResult struct {
	SlideID     string   `json:"slide_id"`
	TotalChunks int      `json:"total_chunks"`
	VectorIDs   []string `json:"vector_ids"`
}

// UploadAccepted is the 202 body for an async upload.
type UploadAccepted struct {
	Message  string `json:"message"`
	TaskID   string `json:"task_id"`
	SlideID  string `json:"slide_id"`
	Status   string `json:"status"`
	FileName string `json:"file_name"`
	Size     int64  `json:"size"`
}

// SlideList is the paginated catalog listing.
type SlideList struct {
	Items  []SlideInDB `json:"items"`
	Total  int64       `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}
