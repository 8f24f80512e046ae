package factory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-rag/config"
	"github.com/feichai0017/pdf-rag/pkg/logger"
)

func TestNewOCRProcessor(t *testing.T) {
	ctx := context.Background()
	log := logger.NewTestLogger()

	cfg := config.Default()
	cfg.OCR.Engine = EngineNone
	p, err := NewOCRProcessor(ctx, cfg, log)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.True(t, log.Contains("WARN", "OCR fallback disabled"))

	cfg.OCR.Engine = EngineVision
	p, err = NewOCRProcessor(ctx, cfg, log)
	require.NoError(t, err)
	assert.NotNil(t, p)

	cfg.OCR.Engine = "abbyy"
	_, err = NewOCRProcessor(ctx, cfg, log)
	assert.Error(t, err)
}

func TestNewIngestorWithoutOCR(t *testing.T) {
	cfg := config.Default()
	cfg.OCR.Engine = EngineNone

	ing, err := NewIngestor(context.Background(), cfg, logger.NewTestLogger())
	require.NoError(t, err)
	assert.NotNil(t, ing)
}
