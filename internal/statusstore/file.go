package statusstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/feichai0017/pdf-rag/internal/models"
)

// DefaultFilename is the status file kept at the storage root.
const DefaultFilename = "processing_status.json"

// FileStore keeps the mapping in a single JSON file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The file is created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the status file location.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) (map[string]models.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]models.DocumentRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", models.ErrStorage, s.path, err)
	}

	records := map[string]models.DocumentRecord{}
	if len(data) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrCorruptStatusFile, err)
	}
	for id, rec := range records {
		if !rec.Status.Valid() {
			return nil, fmt.Errorf("%w: record %s has unknown status %q", models.ErrCorruptStatusFile, id, rec.Status)
		}
		// the key is authoritative
		rec.ID = id
		records[id] = rec
	}
	return records, nil
}

// Save writes the mapping to a temp file in the same directory and renames
// it over the previous file, so readers see either the old or new mapping.
func (s *FileStore) Save(ctx context.Context, records map[string]models.DocumentRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".status-*.json")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp status file: %v", models.ErrStorage, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: failed to write status file: %v", models.ErrStorage, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: failed to sync status file: %v", models.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: failed to close status file: %v", models.ErrStorage, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: failed to replace status file: %v", models.ErrStorage, err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
