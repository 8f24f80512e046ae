// Package agent turns an uploaded PDF into retrieval chunks.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/feichai0017/pdf-rag/internal/agent/document"
	"github.com/feichai0017/pdf-rag/internal/models"
	"github.com/feichai0017/pdf-rag/pkg/logger"
)

// Ingestor produces the ordered chunks of the file at path.
type Ingestor interface {
	Ingest(ctx context.Context, path string) ([]models.Chunk, error)
}

// Metadata keys set on every chunk.
const (
	MetaPage       = "page"
	MetaChunk      = "chunk"
	MetaExtraction = "extraction"
	MetaTitle      = "title"
)

// SplitOptions sizes chunks in characters.
type SplitOptions struct {
	ChunkSize    int
	ChunkOverlap int
}

// PDFIngestor tries the native text layer first and falls back to OCR when
// it is unreadable or empty.
type PDFIngestor struct {
	native   document.Processor
	ocr      document.Processor
	splitter textsplitter.TextSplitter
	logger   logger.Logger
}

// NewPDFIngestor builds an ingestor. ocr may be nil to disable the fallback.
func NewPDFIngestor(native, ocr document.Processor, split SplitOptions, log logger.Logger) *PDFIngestor {
	if split.ChunkSize <= 0 {
		split.ChunkSize = 1000
	}
	if split.ChunkOverlap < 0 || split.ChunkOverlap >= split.ChunkSize {
		split.ChunkOverlap = 200
	}
	return &PDFIngestor{
		native: native,
		ocr:    ocr,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(split.ChunkSize),
			textsplitter.WithChunkOverlap(split.ChunkOverlap),
		),
		logger: log.Named("ingestor"),
	}
}

func (i *PDFIngestor) Ingest(ctx context.Context, path string) ([]models.Chunk, error) {
	doc, err := i.native.Extract(ctx, path)
	switch {
	case err != nil && ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil:
		i.logger.Warn("Standard extraction failed, trying OCR", logger.String("path", path), logger.Error(err))
	case !doc.HasText():
		i.logger.Info("No readable text found, using OCR", logger.String("path", path))
	}

	if err != nil || !doc.HasText() {
		if i.ocr == nil {
			if err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: no content found", models.ErrExtraction)
		}
		doc, err = i.ocr.Extract(ctx, path)
		if err != nil {
			if errors.Is(err, models.ErrOCRFailure) || ctx.Err() != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", models.ErrOCRFailure, err)
		}
	}

	chunks, err := i.split(doc)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no content found", models.ErrExtraction)
	}

	i.logger.Info("Document ingested",
		logger.String("path", path),
		logger.String("extraction", doc.Extraction),
		logger.Int("pages", len(doc.Pages)),
		logger.Int("chunks", len(chunks)),
	)
	return chunks, nil
}

func (i *PDFIngestor) split(doc *document.Document) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for _, page := range doc.Pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		parts, err := i.splitter.SplitText(page.Text)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to split page %d: %v", models.ErrExtraction, page.Number, err)
		}
		for _, part := range parts {
			if strings.TrimSpace(part) == "" {
				continue
			}
			meta := map[string]interface{}{
				MetaPage:       page.Number,
				MetaChunk:      len(chunks),
				MetaExtraction: doc.Extraction,
			}
			if doc.Title != "" {
				meta[MetaTitle] = doc.Title
			}
			chunks = append(chunks, models.Chunk{Content: part, Metadata: meta})
		}
	}
	return chunks, nil
}
