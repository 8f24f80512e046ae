package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/feichai0017/pdf-rag/config"
	"github.com/feichai0017/pdf-rag/internal/agent/factory"
	"github.com/feichai0017/pdf-rag/internal/embedding"
	"github.com/feichai0017/pdf-rag/internal/service/query"
	"github.com/feichai0017/pdf-rag/internal/statusstore"
	"github.com/feichai0017/pdf-rag/internal/utils/validator"
	"github.com/feichai0017/pdf-rag/internal/vectorstore"
	"github.com/feichai0017/pdf-rag/pkg/logger"
	"github.com/feichai0017/pdf-rag/pkg/queue"
	"github.com/feichai0017/pdf-rag/pkg/storage"
	"github.com/feichai0017/pdf-rag/pkg/worker"
)

func loadConfig() (*config.AppConfig, logger.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.NewLogger(
		logger.WithLevel(cfg.Log.Level),
		logger.WithEncoding(cfg.Log.Encoding),
		logger.WithOutputPaths(cfg.Log.OutputPaths),
		logger.WithInitialFields(map[string]interface{}{"service": "pdf-rag"}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log, nil
}

func newStatusStore(ctx context.Context, cfg *config.AppConfig) (statusstore.Store, error) {
	switch cfg.StatusStore.Backend {
	case "file":
		return statusstore.NewFileStore(filepath.Join(cfg.Storage.RootDir, cfg.StatusStore.Filename)), nil
	case "redis":
		return statusstore.NewRedisStore(ctx, statusstore.RedisConfig{
			Addr: cfg.StatusStore.RedisAddr,
			DB:   cfg.StatusStore.RedisDB,
			Key:  cfg.StatusStore.RedisKey,
		})
	case "sqlite":
		return statusstore.NewSQLiteStore(cfg.StatusStore.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported status store backend: %s", cfg.StatusStore.Backend)
	}
}

func newEmbedder(cfg *config.AppConfig, log logger.Logger) (embedding.Embedder, error) {
	return embedding.New(embedding.Config{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		OllamaHost: cfg.Embedding.OllamaHost,
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Dimension:  cfg.Embedding.Dimension,
	}, log)
}

// scheduling pairs the scheduler handed to the manager with the worker that
// drains it.
type scheduling struct {
	scheduler queue.Scheduler
	worker    worker.Worker
	close     func() error
}

func newScheduling(cfg *config.AppConfig, log logger.Logger) scheduling {
	if cfg.Queue.Backend == "asynq" {
		dispatcher := queue.NewAsynqDispatcher(queue.Config{
			RedisAddr:      cfg.Queue.RedisAddr,
			RedisDB:        cfg.Queue.RedisDB,
			QueueName:      cfg.Queue.QueueName,
			ProcessTimeout: cfg.Processing.Timeout,
		})
		return scheduling{
			scheduler: dispatcher,
			worker: worker.NewDocumentWorker(worker.AsynqConfig{
				RedisAddr:       cfg.Queue.RedisAddr,
				RedisDB:         cfg.Queue.RedisDB,
				Concurrency:     cfg.Queue.Workers,
				QueueName:       cfg.Queue.QueueName,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
			}, log),
			close: dispatcher.Close,
		}
	}

	pool := worker.NewPool(worker.Config{
		Workers:   cfg.Queue.Workers,
		QueueSize: cfg.Queue.Size,
	}, log)
	return scheduling{
		scheduler: pool,
		worker:    pool,
		close:     func() error { return nil },
	}
}

// newManager builds a manager for maintenance commands that neither ingest
// nor answer questions.
func newManager(ctx context.Context, cfg *config.AppConfig, log logger.Logger, deps vectorstore.Deps) (*vectorstore.Manager, error) {
	store, err := newStatusStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open status store: %w", err)
	}
	emb, err := newEmbedder(cfg, log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	staging, err := storage.NewStorage(ctx, cfg.Staging, log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize staging storage: %w", err)
	}

	deps.Store = store
	deps.Embedder = emb
	deps.Staging = staging
	deps.Logger = log
	deps.Validator = validator.NewDocumentValidator(log, &validator.ValidatorConfig{
		MaxFileSize:  cfg.Processing.MaxFileSize,
		AllowedTypes: validator.DefaultConfig().AllowedTypes,
	})

	m, err := vectorstore.NewManager(vectorstore.Config{
		RootDir:           cfg.Storage.RootDir,
		Retention:         cfg.Storage.Retention,
		ProcessingTimeout: cfg.Processing.Timeout,
		SearchK:           cfg.Processing.SearchK,
	}, deps)
	if err != nil {
		store.Close()
		return nil, err
	}
	return m, nil
}

// newServingManager adds ingestion, scheduling and answering to a manager.
func newServingManager(ctx context.Context, cfg *config.AppConfig, log logger.Logger, sched queue.Scheduler) (*vectorstore.Manager, error) {
	ingestor, err := factory.NewIngestor(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingestor: %w", err)
	}
	llm, err := query.NewModel(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create language model: %w", err)
	}

	return newManager(ctx, cfg, log, vectorstore.Deps{
		Ingestor:  ingestor,
		Scheduler: sched,
		Answerer: query.NewService(llm, query.Options{
			K:           cfg.Processing.SearchK,
			Temperature: cfg.LLM.Temperature,
		}, log),
	})
}
