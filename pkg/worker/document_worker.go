package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/pdf-rag/pkg/logger"
	"github.com/feichai0017/pdf-rag/pkg/queue"
)

// AsynqConfig configures the Redis-backed consumer.
type AsynqConfig struct {
	RedisAddr       string
	RedisDB         int
	Concurrency     int
	QueueName       string
	ShutdownTimeout time.Duration
}

// DocumentWorker consumes ingestion tasks enqueued by queue.AsynqDispatcher.
// It runs inside the server process; Redis only holds the queue.
type DocumentWorker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger logger.Logger

	mu      sync.Mutex
	handler queue.Handler
}

func NewDocumentWorker(cfg AsynqConfig, log logger.Logger) *DocumentWorker {
	if cfg.QueueName == "" {
		cfg.QueueName = "default"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	w := &DocumentWorker{
		mux:    asynq.NewServeMux(),
		logger: log.Named("asynq"),
	}
	w.server = asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB},
		asynq.Config{
			Concurrency:     cfg.Concurrency,
			Queues:          map[string]int{cfg.QueueName: 1},
			ShutdownTimeout: cfg.ShutdownTimeout,
		},
	)
	w.mux.HandleFunc(queue.TaskTypeDocumentIngest, w.handleDocumentIngest)
	return w
}

func (w *DocumentWorker) handleDocumentIngest(ctx context.Context, t *asynq.Task) error {
	task, err := queue.DecodeTask(t.Payload())
	if err != nil {
		w.logger.Error("Invalid task payload",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	w.mu.Lock()
	handler := w.handler
	w.mu.Unlock()

	w.logger.Info("Processing document task", logger.String("file_id", task.FileID))
	if err := handler(ctx, task); err != nil {
		// the failure is already recorded on the document
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return nil
}

func (w *DocumentWorker) Start(ctx context.Context, handler queue.Handler) error {
	w.mu.Lock()
	w.handler = handler
	w.mu.Unlock()

	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start asynq worker: %w", err)
	}
	w.logger.Info("Asynq worker started")
	return nil
}

// Shutdown waits up to the configured shutdown timeout for running tasks.
func (w *DocumentWorker) Shutdown(ctx context.Context) error {
	w.server.Shutdown()
	return nil
}
