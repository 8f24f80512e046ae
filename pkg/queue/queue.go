// Package queue defines background ingestion tasks and the asynq dispatcher.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TaskTypeDocumentIngest is the asynq task type for document ingestion.
const TaskTypeDocumentIngest = "document:ingest"

// ErrClosed is returned when scheduling on a stopped scheduler.
var ErrClosed = errors.New("scheduler closed")

// IngestTask asks for one accepted upload to be processed.
type IngestTask struct {
	FileID    string    `json:"file_id"`
	Filename  string    `json:"filename"`
	StagedKey string    `json:"staged_key"`
	CreatedAt time.Time `json:"created_at"`
}

// Handler processes one task.
type Handler func(ctx context.Context, task IngestTask) error

// Scheduler hands tasks to background workers without waiting for them.
type Scheduler interface {
	Schedule(ctx context.Context, task IngestTask) error
}

// EncodeTask serialises a task payload.
func EncodeTask(task IngestTask) ([]byte, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}
	return payload, nil
}

// DecodeTask parses and validates a task payload.
func DecodeTask(payload []byte) (IngestTask, error) {
	var task IngestTask
	if err := json.Unmarshal(payload, &task); err != nil {
		return IngestTask{}, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	if task.FileID == "" || task.StagedKey == "" {
		return IngestTask{}, fmt.Errorf("invalid task data: missing required fields")
	}
	return task, nil
}

// Config configures the asynq client.
type Config struct {
	RedisAddr      string
	RedisDB        int
	QueueName      string
	ProcessTimeout time.Duration
}

// AsynqDispatcher enqueues ingestion tasks into Redis.
type AsynqDispatcher struct {
	client  *asynq.Client
	queue   string
	timeout time.Duration
}

func NewAsynqDispatcher(cfg Config) *AsynqDispatcher {
	if cfg.QueueName == "" {
		cfg.QueueName = "default"
	}
	return &AsynqDispatcher{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		}),
		queue:   cfg.QueueName,
		timeout: cfg.ProcessTimeout,
	}
}

// Schedule enqueues task with the file id as task id, so an upload is never
// queued twice. Tasks are not retried: a failed document stays failed.
func (d *AsynqDispatcher) Schedule(ctx context.Context, task IngestTask) error {
	payload, err := EncodeTask(task)
	if err != nil {
		return err
	}

	opts := []asynq.Option{
		asynq.MaxRetry(0),
		asynq.TaskID(task.FileID),
		asynq.Queue(d.queue),
	}
	if d.timeout > 0 {
		// leave the handler room to record the failure after its own deadline
		opts = append(opts, asynq.Timeout(d.timeout+30*time.Second))
	}

	if _, err := d.client.EnqueueContext(ctx, asynq.NewTask(TaskTypeDocumentIngest, payload, opts...)); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

func (d *AsynqDispatcher) Close() error {
	return d.client.Close()
}
