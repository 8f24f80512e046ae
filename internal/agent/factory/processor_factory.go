// Package factory assembles the ingestion pipeline from configuration.
package factory

import (
	"context"
	"fmt"

	"github.com/feichai0017/pdf-rag/config"
	"github.com/feichai0017/pdf-rag/internal/agent"
	"github.com/feichai0017/pdf-rag/internal/agent/document"
	"github.com/feichai0017/pdf-rag/internal/agent/document/ocr"
	"github.com/feichai0017/pdf-rag/internal/agent/document/ocr/tesseract"
	"github.com/feichai0017/pdf-rag/internal/agent/document/ocr/textract"
	"github.com/feichai0017/pdf-rag/internal/agent/document/ocr/vision"
	"github.com/feichai0017/pdf-rag/internal/agent/document/pdf"
	"github.com/feichai0017/pdf-rag/pkg/logger"
)

// OCR engine names accepted in configuration.
const (
	EngineTesseract = "tesseract"
	EngineTextract  = "textract"
	EngineVision    = "vision"
	EngineNone      = "none"
)

// NewIngestor wires the native PDF processor, the configured OCR fallback and
// the text splitter.
func NewIngestor(ctx context.Context, cfg *config.AppConfig, log logger.Logger) (*agent.PDFIngestor, error) {
	ocrProcessor, err := NewOCRProcessor(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	var fallback document.Processor
	if ocrProcessor != nil {
		fallback = ocrProcessor
	}

	return agent.NewPDFIngestor(
		pdf.NewProcessor(log),
		fallback,
		agent.SplitOptions{
			ChunkSize:    cfg.Processing.ChunkSize,
			ChunkOverlap: cfg.Processing.ChunkOverlap,
		},
		log,
	), nil
}

// NewOCRProcessor returns nil when OCR is disabled.
func NewOCRProcessor(ctx context.Context, cfg *config.AppConfig, log logger.Logger) (*ocr.Processor, error) {
	var engine ocr.Engine

	switch cfg.OCR.Engine {
	case EngineTesseract:
		engine = tesseract.NewEngine(tesseract.Options{
			Languages:  cfg.OCR.Languages,
			Preprocess: cfg.OCR.Preprocess,
		}, log)

	case EngineTextract:
		tc := cfg.OCR.Textract
		e, err := textract.NewEngine(ctx, textract.Config{
			Region:        tc.Region,
			AccessKey:     tc.AccessKey,
			SecretKey:     tc.SecretKey,
			MinConfidence: tc.MinConfidence,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create textract engine: %w", err)
		}
		engine = e

	case EngineVision:
		vc := cfg.OCR.Vision
		e, err := vision.NewEngine(vision.Config{
			Model:      vc.Model,
			OllamaHost: vc.OllamaHost,
			MaxTokens:  vc.MaxTokens,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create vision engine: %w", err)
		}
		engine = e

	case EngineNone, "":
		log.Warn("OCR fallback disabled, scanned PDFs will fail")
		return nil, nil

	default:
		return nil, fmt.Errorf("unsupported OCR engine: %s", cfg.OCR.Engine)
	}

	log.Info("OCR fallback enabled", logger.String("engine", cfg.OCR.Engine))
	return ocr.NewProcessor(
		ocr.NewPdftoppmRasterizer(cfg.OCR.PdftoppmPath, cfg.OCR.DPI),
		engine,
		ocr.Options{
			ConversionTimeout: cfg.Processing.ConversionTimeout,
			PageTimeout:       cfg.Processing.PageTimeout,
			Concurrency:       cfg.OCR.Concurrency,
		},
		log,
	), nil
}
