package vectorstore

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/feichai0017/pdf-rag/internal/models"
	"github.com/feichai0017/pdf-rag/pkg/logger"
)

// Cleanup removes every record older than maxAge together with its vector
// store, plus untracked directories older than maxAge. maxAge <= 0 removes
// everything. A record whose directory cannot be deleted is logged and kept
// for the next sweep. It returns the number of records removed.
func (m *Manager) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	now := m.now()
	cutoff := now.Add(-maxAge)
	expired := func(t time.Time) bool {
		return maxAge <= 0 || t.Before(cutoff)
	}

	// Directories are removed under mu so a task finishing concurrently
	// either sees its record gone or has its directory swept here.
	m.mu.Lock()
	removed, kept := 0, 0
	rebuild := false
	for id, rec := range m.records {
		if !expired(rec.Timestamp) {
			continue
		}
		if err := m.removeDir(id); err != nil {
			kept++
			continue
		}
		removed++
		if rec.Status == models.StatusDone {
			rebuild = true
		}
		delete(m.records, id)
	}
	var saveErr error
	if removed > 0 {
		saveErr = m.saveLocked(ctx)
	}
	m.mu.Unlock()

	if saveErr != nil {
		m.log.Error("Failed to persist status after cleanup", logger.Error(saveErr))
	}

	m.sweepUntracked(expired)

	if m.deps.Staging != nil {
		if err := m.deps.Staging.CleanupBefore(ctx, cutoff); err != nil {
			m.log.Warn("Failed to clean staging area", logger.Error(err))
		}
	}

	if rebuild {
		if err := m.RebuildActive(ctx); err != nil {
			m.log.Error("Failed to rebuild active index", logger.Error(err))
		}
	}

	m.log.Info("Cleanup finished",
		logger.Int("removed", removed),
		logger.Int("kept", kept),
		logger.Time("cutoff", cutoff),
	)
	return removed, saveErr
}

// sweepUntracked removes expired directories under the root that no record
// refers to, including abandoned temp directories.
func (m *Manager) sweepUntracked(expired func(time.Time) bool) {
	entries, err := os.ReadDir(m.cfg.RootDir)
	if err != nil {
		m.log.Warn("Failed to list root for cleanup", logger.Error(err))
		return
	}

	m.mu.Lock()
	tracked := make(map[string]bool, len(m.records))
	for id := range m.records {
		tracked[id] = true
	}
	m.mu.Unlock()

	for _, e := range entries {
		if !e.IsDir() || tracked[e.Name()] {
			continue
		}
		info, err := e.Info()
		if err != nil || !expired(info.ModTime()) {
			continue
		}
		if err := m.removeAll(filepath.Join(m.cfg.RootDir, e.Name())); err != nil {
			m.log.Warn("Failed to remove untracked directory", logger.String("dir", e.Name()), logger.Error(err))
			continue
		}
		m.log.Info("Removed untracked directory", logger.String("dir", e.Name()))
	}
}

// RunCleanupLoop runs Cleanup every interval until ctx is done.
func (m *Manager) RunCleanupLoop(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Cleanup(ctx, maxAge); err != nil {
				m.log.Error("Scheduled cleanup failed", logger.Error(err))
			}
		}
	}
}
