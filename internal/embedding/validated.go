package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/feichai0017/pdf-rag/pkg/logger"
)

// Validated wraps an Embedder and checks the count and dimension of what it returns.
type Validated struct {
	inner     Embedder
	dimension int
	model     string
	log       logger.Logger
}

// NewValidated wraps inner. A dimension of zero disables the dimension check.
func NewValidated(inner Embedder, dimension int, log logger.Logger) *Validated {
	return &Validated{inner: inner, dimension: dimension, log: log}
}

func (e *Validated) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	vectors, err := e.inner.EmbedDocuments(ctx, texts)
	if err != nil {
		e.log.Warn("embedding failed",
			logger.String("model", e.model),
			logger.Int("texts", len(texts)),
			logger.Duration("duration", time.Since(start)),
			logger.Error(err))
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("count mismatch: got %d, want %d", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if err := e.check(v); err != nil {
			return nil, fmt.Errorf("embedding %d: %w", i, err)
		}
	}

	e.log.Debug("embedded batch",
		logger.String("model", e.model),
		logger.Int("texts", len(texts)),
		logger.Duration("duration", time.Since(start)))
	return vectors, nil
}

func (e *Validated) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if err := e.check(v); err != nil {
		return nil, err
	}
	return v, nil
}

func (e *Validated) check(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("empty embedding")
	}
	if e.dimension > 0 && len(v) != e.dimension {
		return fmt.Errorf("dimension mismatch: got %d, want %d", len(v), e.dimension)
	}
	return nil
}
