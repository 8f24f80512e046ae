// Package statusstore persists the id -> DocumentRecord mapping.
//
// Every backend saves by full overwrite: the caller hands over the complete
// mapping after each mutation and the store replaces what it had.
package statusstore

import (
	"context"

	"github.com/feichai0017/pdf-rag/internal/models"
)

// Store is the durable status mapping.
type Store interface {
	// Load returns the persisted mapping. A store that was never written
	// returns an empty mapping. Unreadable data wraps models.ErrCorruptStatusFile.
	Load(ctx context.Context) (map[string]models.DocumentRecord, error)
	// Save atomically replaces the persisted mapping with records.
	Save(ctx context.Context, records map[string]models.DocumentRecord) error
	Close() error
}
