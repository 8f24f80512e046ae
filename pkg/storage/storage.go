// Package storage stages uploaded files until background processing
// consumes them.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/feichai0017/pdf-rag/config"
	"github.com/feichai0017/pdf-rag/pkg/logger"
	"github.com/feichai0017/pdf-rag/pkg/storage/local"
	"github.com/feichai0017/pdf-rag/pkg/storage/minio"
	"github.com/feichai0017/pdf-rag/pkg/storage/s3"
)

// StorageType names a staging backend.
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
	StorageTypeMinio StorageType = "minio"
)

// Storage is a flat key/blob store.
type Storage interface {
	// Store writes reader under key and returns the key to fetch it with.
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// CleanupBefore removes every blob last modified before threshold.
	CleanupBefore(ctx context.Context, threshold time.Time) error
}

// NewStorage builds the staging backend named in cfg.
func NewStorage(ctx context.Context, cfg config.StagingConfig, log logger.Logger) (Storage, error) {
	log = log.Named("staging")
	switch StorageType(cfg.Backend) {
	case StorageTypeLocal, "":
		return local.NewLocalStorage(cfg.LocalDir, log)
	case StorageTypeS3:
		return s3.NewS3Storage(ctx, cfg.S3, log)
	case StorageTypeMinio:
		return minio.NewMinioStorage(ctx, cfg.Minio, log)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Backend)
	}
}
