package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/pdf-rag/internal/models"
	"github.com/feichai0017/pdf-rag/internal/utils/validator"
	"github.com/feichai0017/pdf-rag/internal/vectorstore/index"
	"github.com/feichai0017/pdf-rag/pkg/logger"
	"github.com/feichai0017/pdf-rag/pkg/queue"
)

// Chunk metadata keys set by the manager.
const (
	MetaSource = "source"
	MetaFileID = "file_id"
)

// SubmitDocument validates and stages an upload, records it as Uploaded and
// schedules its processing. The record is persisted before it returns; the
// processing itself is never awaited. size may be -1 when unknown.
func (m *Manager) SubmitDocument(ctx context.Context, filename string, size int64, r io.Reader) (models.DocumentRecord, error) {
	v := m.deps.Validator
	if err := v.ValidateName(filename); err != nil {
		return models.DocumentRecord{}, err
	}
	if err := v.ValidateSize(size); err != nil {
		return models.DocumentRecord{}, err
	}
	body, err := v.ValidateContent(filename, r)
	if err != nil {
		return models.DocumentRecord{}, err
	}
	if m.deps.Staging == nil || m.deps.Scheduler == nil {
		return models.DocumentRecord{}, fmt.Errorf("manager is not configured for ingestion")
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "") + "_" + validator.SanitizeFilename(filename)

	stagedKey, err := m.deps.Staging.Store(ctx, body, id)
	if err != nil {
		if errors.Is(err, models.ErrFileTooLarge) {
			return models.DocumentRecord{}, models.ErrFileTooLarge
		}
		return models.DocumentRecord{}, fmt.Errorf("%w: failed to stage upload: %v", models.ErrStorage, err)
	}

	rec := models.DocumentRecord{
		ID:        id,
		Filename:  filename,
		Status:    models.StatusUploaded,
		Message:   msgUploaded,
		Timestamp: m.now(),
	}

	m.mu.Lock()
	m.records[id] = rec
	if err := m.saveLocked(ctx); err != nil {
		delete(m.records, id)
		m.mu.Unlock()
		m.deleteStaged(stagedKey)
		return models.DocumentRecord{}, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	m.mu.Unlock()

	task := queue.IngestTask{
		FileID:    id,
		Filename:  filename,
		StagedKey: stagedKey,
		CreatedAt: rec.Timestamp,
	}
	if err := m.deps.Scheduler.Schedule(ctx, task); err != nil {
		m.log.Error("Failed to schedule processing", logger.String("file_id", id), logger.Error(err))
		m.fail(ctx, id, fmt.Sprintf("could not schedule processing: %v", err))
		m.deleteStaged(stagedKey)
		return models.DocumentRecord{}, fmt.Errorf("failed to schedule processing: %w", err)
	}

	m.log.Info("Document accepted",
		logger.String("file_id", id),
		logger.String("filename", filename),
		logger.Int64("size", size),
	)
	return rec, nil
}

// ProcessDocument is the background body of an ingest task. Failures are
// recorded on the document; the returned error is only for the worker's log.
func (m *Manager) ProcessDocument(ctx context.Context, task queue.IngestTask) error {
	defer m.deleteStaged(task.StagedKey)

	if !validID(task.FileID) {
		return fmt.Errorf("invalid file id %q", task.FileID)
	}
	if !m.transition(ctx, task.FileID, models.StatusUploaded, models.StatusProcessing, msgProcessing) {
		m.log.Warn("Skipping task for document not awaiting processing", logger.String("file_id", task.FileID))
		return nil
	}

	start := m.now()
	taskCtx, cancel := context.WithTimeout(ctx, m.cfg.ProcessingTimeout)
	count, err := m.build(taskCtx, task)
	if err != nil && errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("processing timed out after %s: %w", m.cfg.ProcessingTimeout, err)
	}
	cancel()

	if err != nil {
		m.removeDir(task.FileID)
		m.fail(ctx, task.FileID, err.Error())
		m.log.Error("Document processing failed",
			logger.String("file_id", task.FileID),
			logger.Duration("elapsed", m.now().Sub(start)),
			logger.Error(err),
		)
		return err
	}

	if !m.complete(ctx, task.FileID, count) {
		// cleanup removed the record while we were working
		m.removeDir(task.FileID)
		m.log.Warn("Document removed during processing, discarding index", logger.String("file_id", task.FileID))
		return nil
	}

	m.log.Info("Document processed",
		logger.String("file_id", task.FileID),
		logger.Int("vectors", count),
		logger.Duration("elapsed", m.now().Sub(start)),
	)

	if err := m.RebuildActive(ctx); err != nil {
		m.log.Error("Failed to rebuild active index", logger.Error(err))
	}
	return nil
}

// build runs ingestion, embedding and persistence for one document.
func (m *Manager) build(ctx context.Context, task queue.IngestTask) (int, error) {
	if m.deps.Ingestor == nil {
		return 0, fmt.Errorf("no ingestor configured")
	}

	path, err := m.materialise(ctx, task.StagedKey)
	if err != nil {
		return 0, err
	}
	defer os.Remove(path)

	chunks, err := m.ingest(ctx, path)
	if err != nil {
		return 0, err
	}
	for i := range chunks {
		if chunks[i].Metadata == nil {
			chunks[i].Metadata = make(map[string]interface{})
		}
		chunks[i].Metadata[MetaSource] = task.Filename
		chunks[i].Metadata[MetaFileID] = task.FileID
	}

	ix, err := index.Build(ctx, chunks, m.deps.Embedder)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := ix.Persist(m.dir(task.FileID)); err != nil {
		return 0, err
	}
	return ix.Len(), nil
}

// ingest runs the ingestor until ctx is done. An ingestor that ignores ctx
// keeps running in the background and its result is discarded.
func (m *Manager) ingest(ctx context.Context, path string) ([]models.Chunk, error) {
	type result struct {
		chunks []models.Chunk
		err    error
	}
	done := make(chan result, 1)
	go func() {
		chunks, err := m.deps.Ingestor.Ingest(ctx, path)
		done <- result{chunks: chunks, err: err}
	}()

	select {
	case r := <-done:
		if r.err == nil && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrExtraction, ctx.Err())
		}
		return r.chunks, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", models.ErrExtraction, ctx.Err())
	}
}

// materialise copies the staged blob to a local temp file.
func (m *Manager) materialise(ctx context.Context, key string) (string, error) {
	rc, err := m.deps.Staging.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("%w: failed to fetch staged upload: %v", models.ErrStorage, err)
	}
	defer rc.Close()

	f, err := os.CreateTemp("", "pdf-rag-*.pdf")
	if err != nil {
		return "", fmt.Errorf("%w: failed to create temp file: %v", models.ErrStorage, err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("%w: failed to copy staged upload: %v", models.ErrStorage, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("%w: failed to write temp file: %v", models.ErrStorage, err)
	}
	return f.Name(), nil
}

// transition moves id from want to next. It reports false when the record
// is missing or not in want.
func (m *Manager) transition(ctx context.Context, id string, want, next models.ProcessingStatus, message string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok || rec.Status != want {
		return false
	}
	if err := rec.Transition(next, message, m.now()); err != nil {
		m.log.Error("Rejected status change", logger.Error(err))
		return false
	}
	m.records[id] = rec
	if err := m.saveLocked(ctx); err != nil {
		m.log.Error("Failed to persist status", logger.String("file_id", id), logger.Error(err))
	}
	return true
}

func (m *Manager) complete(ctx context.Context, id string, count int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return false
	}
	if err := rec.Transition(models.StatusDone, msgDone, m.now()); err != nil {
		m.log.Error("Rejected status change", logger.Error(err))
		return false
	}
	rec.VectorCount = count
	m.records[id] = rec
	if err := m.saveLocked(ctx); err != nil {
		m.log.Error("Failed to persist status", logger.String("file_id", id), logger.Error(err))
	}
	return true
}

func (m *Manager) fail(ctx context.Context, id, cause string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return
	}
	if err := rec.Transition(models.StatusFailed, fmt.Sprintf(msgFailedFmt, cause), m.now()); err != nil {
		m.log.Error("Rejected status change", logger.Error(err))
		return
	}
	m.records[id] = rec
	if err := m.saveLocked(ctx); err != nil {
		m.log.Error("Failed to persist status", logger.String("file_id", id), logger.Error(err))
	}
}

func (m *Manager) deleteStaged(key string) {
	if key == "" || m.deps.Staging == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.deps.Staging.Delete(ctx, key); err != nil {
		m.log.Warn("Failed to delete staged upload", logger.String("key", key), logger.Error(err))
	}
}
