package vectorstore

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/feichai0017/pdf-rag/internal/models"
	"github.com/feichai0017/pdf-rag/internal/vectorstore/index"
	"github.com/feichai0017/pdf-rag/pkg/logger"
)

// Active returns the current merged index, or nil when nothing is Done.
func (m *Manager) Active() *index.Index {
	return m.active.Load()
}

// RebuildActive loads every Done document's index and merges them into a
// fresh active index, then swaps it in. Readers see either the old or the
// new index. Documents whose directory cannot be loaded are skipped.
func (m *Manager) RebuildActive(ctx context.Context) error {
	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()

	m.mu.Lock()
	done := make([]models.DocumentRecord, 0, len(m.records))
	for _, rec := range m.records {
		if rec.Status == models.StatusDone {
			done = append(done, rec)
		}
	}
	m.mu.Unlock()

	sort.Slice(done, func(i, j int) bool {
		if !done[i].Timestamp.Equal(done[j].Timestamp) {
			return done[i].Timestamp.Before(done[j].Timestamp)
		}
		return done[i].ID < done[j].ID
	})

	var merged *index.Index
	loaded := 0
	for _, rec := range done {
		if err := ctx.Err(); err != nil {
			return err
		}
		dir := m.dir(rec.ID)
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		ix, err := index.Load(dir, m.deps.Embedder)
		if err != nil {
			m.log.Warn("Skipping unloadable vector store", logger.String("file_id", rec.ID), logger.Error(err))
			continue
		}
		if merged == nil {
			merged = ix
			loaded++
			continue
		}
		if err := merged.Merge(ix); err != nil {
			m.log.Warn("Skipping incompatible vector store", logger.String("file_id", rec.ID), logger.Error(err))
			continue
		}
		loaded++
	}

	m.active.Store(merged)

	vectors := 0
	if merged != nil {
		vectors = merged.Len()
	}
	m.log.Info("Active index rebuilt",
		logger.Int("documents", loaded),
		logger.Int("vectors", vectors),
	)
	return nil
}

// Query answers text from the active index.
func (m *Manager) Query(ctx context.Context, text string) (models.Answer, error) {
	active, err := m.ready(text)
	if err != nil {
		return models.Answer{}, err
	}
	if m.deps.Answerer == nil {
		return models.Answer{}, fmt.Errorf("no answerer configured")
	}
	return m.deps.Answerer.Answer(ctx, text, active)
}

// Search returns the k chunks of the active index closest to text.
func (m *Manager) Search(ctx context.Context, text string, k int) ([]models.SearchResult, error) {
	active, err := m.ready(text)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		k = m.cfg.SearchK
	}
	return active.Search(ctx, text, k)
}

func (m *Manager) ready(text string) (*index.Index, error) {
	if strings.TrimSpace(text) == "" {
		return nil, models.ErrEmptyQuery
	}
	active := m.active.Load()
	if active == nil || active.Len() == 0 {
		return nil, models.ErrNoDocuments
	}
	return active, nil
}
