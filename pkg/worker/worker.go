// Package worker runs ingestion tasks in the background.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/feichai0017/pdf-rag/internal/models"
	"github.com/feichai0017/pdf-rag/pkg/logger"
	"github.com/feichai0017/pdf-rag/pkg/queue"
)

// Worker consumes scheduled tasks until stopped.
type Worker interface {
	Start(ctx context.Context, handler queue.Handler) error
	Shutdown(ctx context.Context) error
}

// Config sizes the in-process pool.
type Config struct {
	Workers   int
	QueueSize int
}

// Pool is a bounded in-process task queue drained by a fixed set of
// goroutines. Schedule never blocks: a full queue is reported as
// models.ErrQueueFull.
type Pool struct {
	cfg    Config
	tasks  chan queue.IngestTask
	logger logger.Logger

	mu      sync.RWMutex
	closed  bool
	started bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewPool(cfg Config, log logger.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	return &Pool{
		cfg:    cfg,
		tasks:  make(chan queue.IngestTask, cfg.QueueSize),
		logger: log.Named("worker"),
	}
}

// Start launches the workers. Tasks run under a context derived from ctx
// that outlives the requests which scheduled them.
func (p *Pool) Start(ctx context.Context, handler queue.Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("worker pool already started")
	}
	if p.closed {
		return queue.ErrClosed
	}
	p.started = true

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.run(runCtx, i, handler)
	}
	p.logger.Info("Worker pool started",
		logger.Int("workers", p.cfg.Workers),
		logger.Int("queue_size", p.cfg.QueueSize),
	)
	return nil
}

func (p *Pool) run(ctx context.Context, id int, handler queue.Handler) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.handle(ctx, id, handler, task)
	}
}

func (p *Pool) handle(ctx context.Context, id int, handler queue.Handler, task queue.IngestTask) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Task panicked",
				logger.Int("worker", id),
				logger.String("file_id", task.FileID),
				logger.Any("panic", r),
			)
		}
	}()

	if err := handler(ctx, task); err != nil {
		p.logger.Warn("Task failed",
			logger.Int("worker", id),
			logger.String("file_id", task.FileID),
			logger.Error(err),
		)
	}
}

// Schedule enqueues task without blocking.
func (p *Pool) Schedule(ctx context.Context, task queue.IngestTask) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return queue.ErrClosed
	}

	select {
	case p.tasks <- task:
		return nil
	default:
		return fmt.Errorf("%w: %d tasks pending", models.ErrQueueFull, cap(p.tasks))
	}
}

// Pending returns the number of queued tasks not yet picked up.
func (p *Pool) Pending() int {
	return len(p.tasks)
}

// Shutdown stops intake and waits for queued and running tasks to finish.
// If ctx ends first, running tasks are cancelled and ctx's error returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	started := p.started
	p.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("Worker pool drained")
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
