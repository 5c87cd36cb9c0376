package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"teacher-dashboard-api/models"
)

var ErrJobNotFound = errors.New("ingest job not found")

// Client enqueues uploads and reports their progress.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func NewClient(opt asynq.RedisConnOpt) *Client {
	return &Client{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
	}
}

func (c *Client) Enqueue(ctx context.Context, p IngestPayload) (string, error) {
	task, err := NewIngestTask(p)
	if err != nil {
		return "", fmt.Errorf("create ingest task: %w", err)
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("enqueue ingest task: %w", err)
	}
	return info.ID, nil
}

func (c *Client) Status(_ context.Context, taskID string) (*models.IngestJob, error) {
	info, err := c.inspector.GetTaskInfo(QueueCritical, taskID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("inspect task %s: %w", taskID, err)
	}
	return jobFromInfo(info), nil
}

func (c *Client) Close() error {
	return errors.Join(c.client.Close(), c.inspector.Close())
}

func jobFromInfo(info *asynq.TaskInfo) *models.IngestJob {
	job := &models.IngestJob{
		TaskID:    info.ID,
		Queue:     info.Queue,
		State:     info.State.String(),
		Retried:   info.Retried,
		MaxRetry:  info.MaxRetry,
		LastError: info.LastErr,
	}
	if !info.CompletedAt.IsZero() {
		t := info.CompletedAt
		job.CompletedAt = &t
	}
	if len(info.Result) > 0 {
		var res models.JobResult
		if err := json.Unmarshal(info.Result, &res); err == nil {
			job.Result = &res
		}
	}
	return job
}
