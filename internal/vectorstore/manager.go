// Package vectorstore manages the lifecycle of per-document vector indices:
// status tracking, background ingestion, the merged active index and
// retention cleanup.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/feichai0017/pdf-rag/internal/agent"
	"github.com/feichai0017/pdf-rag/internal/embedding"
	"github.com/feichai0017/pdf-rag/internal/models"
	"github.com/feichai0017/pdf-rag/internal/service/query"
	"github.com/feichai0017/pdf-rag/internal/statusstore"
	"github.com/feichai0017/pdf-rag/internal/utils/validator"
	"github.com/feichai0017/pdf-rag/internal/vectorstore/index"
	"github.com/feichai0017/pdf-rag/pkg/logger"
	"github.com/feichai0017/pdf-rag/pkg/queue"
	"github.com/feichai0017/pdf-rag/pkg/storage"
)

const (
	msgUploaded   = "File uploaded, waiting for processing"
	msgProcessing = "Creating vector embeddings"
	msgDone       = "Processing completed"
	msgDiscovered = "Discovered existing vector store"
	msgUntracked  = "File was processed but status not tracked"
	msgFailedFmt  = "Processing failed: %s"

	probeFile = ".write-probe"
)

// idPrefix matches the hex uuid that starts every generated id.
var idPrefix = regexp.MustCompile(`^[0-9a-f]{32}_`)

type Config struct {
	RootDir           string
	Retention         time.Duration
	ProcessingTimeout time.Duration
	SearchK           int
}

// Deps are the collaborators a Manager drives. Answerer may be nil for
// tools that never query.
type Deps struct {
	Store     statusstore.Store
	Ingestor  agent.Ingestor
	Embedder  embedding.Embedder
	Staging   storage.Storage
	Scheduler queue.Scheduler
	Answerer  query.Answerer
	Validator *validator.DocumentValidator
	Logger    logger.Logger
}

// Manager owns every DocumentRecord and the active index. Records are only
// mutated under mu and each mutation is saved before mu is released.
type Manager struct {
	cfg  Config
	deps Deps
	log  logger.Logger
	now  func() time.Time

	removeAll func(path string) error

	mu      sync.Mutex
	records map[string]models.DocumentRecord

	rebuildMu sync.Mutex
	active    atomic.Pointer[index.Index]
}

func NewManager(cfg Config, deps Deps) (*Manager, error) {
	if cfg.RootDir == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	if deps.Store == nil || deps.Embedder == nil || deps.Logger == nil {
		return nil, fmt.Errorf("status store, embedder and logger are required")
	}
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = 300 * time.Second
	}
	if cfg.SearchK <= 0 {
		cfg.SearchK = index.DefaultK
	}
	if deps.Validator == nil {
		deps.Validator = validator.NewDocumentValidator(deps.Logger, nil)
	}
	return &Manager{
		cfg:     cfg,
		deps:    deps,
		log:     deps.Logger.Named("vectorstore"),
		now:     time.Now,
		records: make(map[string]models.DocumentRecord),

		removeAll: os.RemoveAll,
	}, nil
}

// Open verifies the root is writable, loads and reconciles persisted
// statuses with the directories on disk, builds the active index and runs
// one retention sweep.
func (m *Manager) Open(ctx context.Context) error {
	if err := m.probeRoot(); err != nil {
		return err
	}

	records, err := m.deps.Store.Load(ctx)
	switch {
	case errors.Is(err, models.ErrCorruptStatusFile):
		m.log.Warn("Status file is corrupt, starting with empty status", logger.Error(err))
		records = make(map[string]models.DocumentRecord)
	case err != nil:
		return fmt.Errorf("failed to load status: %w", err)
	}

	m.removeTempDirs()

	dirs, err := m.indexDirs()
	if err != nil {
		return err
	}
	m.reconcile(records, dirs)

	m.mu.Lock()
	m.records = records
	err = m.saveLocked(ctx)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	if err := m.RebuildActive(ctx); err != nil {
		return err
	}

	if m.cfg.Retention > 0 {
		if _, err := m.Cleanup(ctx, m.cfg.Retention); err != nil {
			m.log.Warn("Startup cleanup failed", logger.Error(err))
		}
	}

	m.log.Info("Vector store opened",
		logger.String("root", m.cfg.RootDir),
		logger.Int("documents", len(records)),
	)
	return nil
}

// LoadRecords reads persisted statuses without reconciling or writing
// anything, for read-only inspection next to a running server.
func (m *Manager) LoadRecords(ctx context.Context) error {
	records, err := m.deps.Store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load status: %w", err)
	}
	m.mu.Lock()
	m.records = records
	m.mu.Unlock()
	return nil
}

func (m *Manager) Close() error {
	return m.deps.Store.Close()
}

func (m *Manager) probeRoot() error {
	if err := os.MkdirAll(m.cfg.RootDir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create root %s: %v", models.ErrStorage, m.cfg.RootDir, err)
	}
	probe := filepath.Join(m.cfg.RootDir, probeFile)
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		return fmt.Errorf("%w: root %s is not writable: %v", models.ErrStorage, m.cfg.RootDir, err)
	}
	return os.Remove(probe)
}

// reconcile fixes records that disagree with the disk. Records left in a
// non-terminal state by a previous process can never finish, and a Done
// record without its directory cannot be served.
func (m *Manager) reconcile(records map[string]models.DocumentRecord, dirs map[string]time.Time) {
	now := m.now()

	for id, modTime := range dirs {
		if _, ok := records[id]; ok {
			continue
		}
		records[id] = models.DocumentRecord{
			ID:        id,
			Filename:  filenameFromID(id),
			Status:    models.StatusDone,
			Message:   msgDiscovered,
			Timestamp: modTime,
		}
		m.log.Warn("Registered untracked vector store as done", logger.String("file_id", id))
	}

	for id, rec := range records {
		_, hasDir := dirs[id]
		switch rec.Status {
		case models.StatusUploaded, models.StatusProcessing:
			if hasDir {
				m.removeDir(id)
			}
			if err := rec.Transition(models.StatusFailed, fmt.Sprintf(msgFailedFmt, "interrupted by restart"), now); err != nil {
				m.log.Error("Failed to reconcile record", logger.String("file_id", id), logger.Error(err))
				continue
			}
			m.log.Warn("Marked interrupted document as failed", logger.String("file_id", id))
		case models.StatusDone:
			if hasDir {
				continue
			}
			// outside the state machine: the record was wrong, not the document
			rec.Status = models.StatusFailed
			rec.Message = fmt.Sprintf(msgFailedFmt, "vector store missing on disk")
			rec.Timestamp = now
			m.log.Warn("Done document has no vector store, marked failed", logger.String("file_id", id))
		default:
			continue
		}
		records[id] = rec
	}
}

// indexDirs lists document directories under the root with their mtimes.
func (m *Manager) indexDirs() (map[string]time.Time, error) {
	entries, err := os.ReadDir(m.cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list %s: %v", models.ErrStorage, m.cfg.RootDir, err)
	}
	dirs := make(map[string]time.Time, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		dirs[e.Name()] = info.ModTime()
	}
	return dirs, nil
}

func (m *Manager) removeTempDirs() {
	entries, err := os.ReadDir(m.cfg.RootDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), index.TempPrefix) {
			if err := os.RemoveAll(filepath.Join(m.cfg.RootDir, e.Name())); err != nil {
				m.log.Warn("Failed to remove temp dir", logger.String("dir", e.Name()), logger.Error(err))
			}
		}
	}
}

func (m *Manager) dir(id string) string {
	return filepath.Join(m.cfg.RootDir, id)
}

func (m *Manager) removeDir(id string) error {
	if err := m.removeAll(m.dir(id)); err != nil {
		m.log.Warn("Failed to remove vector store", logger.String("file_id", id), logger.Error(err))
		return err
	}
	return nil
}

// saveLocked persists the full mapping. Callers hold mu.
func (m *Manager) saveLocked(ctx context.Context) error {
	snapshot := make(map[string]models.DocumentRecord, len(m.records))
	for id, rec := range m.records {
		snapshot[id] = rec
	}
	if err := m.deps.Store.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

// GetStatus returns the record for id. An untracked directory on disk is
// reported as Done without being persisted.
func (m *Manager) GetStatus(id string) (models.DocumentRecord, error) {
	if !validID(id) {
		return models.DocumentRecord{}, fmt.Errorf("%w: %q", models.ErrNotFound, id)
	}

	m.mu.Lock()
	rec, ok := m.records[id]
	m.mu.Unlock()
	if ok {
		return rec, nil
	}

	info, err := os.Stat(m.dir(id))
	if err != nil || !info.IsDir() {
		return models.DocumentRecord{}, fmt.Errorf("%w: %q", models.ErrNotFound, id)
	}
	m.log.Warn("Status requested for untracked vector store", logger.String("file_id", id))
	return models.DocumentRecord{
		ID:        id,
		Filename:  filenameFromID(id),
		Status:    models.StatusDone,
		Message:   msgUntracked,
		Timestamp: info.ModTime(),
	}, nil
}

// ListStatuses returns every record, newest first.
func (m *Manager) ListStatuses() []models.DocumentRecord {
	m.mu.Lock()
	out := make([]models.DocumentRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func validID(id string) bool {
	return id != "" && id == filepath.Base(id) && !strings.HasPrefix(id, ".") && !strings.ContainsAny(id, `/\`)
}

func filenameFromID(id string) string {
	return idPrefix.ReplaceAllString(id, "")
}
