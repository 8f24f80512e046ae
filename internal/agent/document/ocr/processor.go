// Package ocr recognises text on scanned PDFs: pages are rasterised, then each
// image is handed to a recognition Engine.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/pdf-rag/internal/agent/document"
	"github.com/feichai0017/pdf-rag/internal/models"
	"github.com/feichai0017/pdf-rag/pkg/logger"
)

// Engine recognises the text of one encoded page image.
type Engine interface {
	Recognize(ctx context.Context, image []byte) (string, error)
	Close() error
}

// Options bounds the OCR stages.
type Options struct {
	ConversionTimeout time.Duration
	PageTimeout       time.Duration
	Concurrency       int
}

// DefaultOptions returns the stage timeouts used when none are configured.
func DefaultOptions() Options {
	return Options{
		ConversionTimeout: 60 * time.Second,
		PageTimeout:       10 * time.Second,
		Concurrency:       2,
	}
}

// Processor implements document.Processor with OCR.
type Processor struct {
	raster Rasterizer
	engine Engine
	opts   Options
	logger logger.Logger
}

func NewProcessor(raster Rasterizer, engine Engine, opts Options, log logger.Logger) *Processor {
	def := DefaultOptions()
	if opts.ConversionTimeout <= 0 {
		opts.ConversionTimeout = def.ConversionTimeout
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = def.PageTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	return &Processor{raster: raster, engine: engine, opts: opts, logger: log.Named("ocr")}
}

// Extract rasterises the PDF and recognises every page. Each page's text is
// headed by "--- PAGE n ---"; a page that fails or times out contributes
// "--- PAGE n OCR FAILED ---" and the cause instead. It fails only when no
// page produced any text.
func (p *Processor) Extract(ctx context.Context, path string) (*document.Document, error) {
	convCtx, cancel := context.WithTimeout(ctx, p.opts.ConversionTimeout)
	images, err := p.raster.Rasterize(convCtx, path)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: PDF to image conversion timed out", models.ErrOCRFailure)
		}
		return nil, fmt.Errorf("%w: PDF to image conversion failed: %v", models.ErrOCRFailure, err)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: no pages rendered", models.ErrOCRFailure)
	}

	pages := make([]document.Page, len(images))
	recognised := make([]bool, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for i := range images {
		i := i
		g.Go(func() error {
			num := i + 1
			text, err := p.recognizePage(gctx, images[i])
			switch {
			case err != nil && ctx.Err() != nil:
				return ctx.Err()
			case err != nil:
				p.logger.Warn("Page OCR failed", logger.Int("page", num), logger.Error(err))
				pages[i] = document.Page{Number: num, Text: fmt.Sprintf("--- PAGE %d OCR FAILED ---\n%v", num, err)}
			default:
				pages[i] = document.Page{Number: num, Text: fmt.Sprintf("--- PAGE %d ---\n%s", num, text)}
				recognised[i] = strings.TrimSpace(text) != ""
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ok := 0
	for _, r := range recognised {
		if r {
			ok++
		}
	}
	p.logger.Info("OCR finished",
		logger.String("path", path),
		logger.Int("pages", len(pages)),
		logger.Int("recognised", ok),
	)
	if ok == 0 {
		return nil, fmt.Errorf("%w: OCR could not extract text from any of %d pages", models.ErrOCRFailure, len(pages))
	}

	return &document.Document{Pages: pages, Extraction: document.ExtractionOCR}, nil
}

// recognizePage runs the engine under the page timeout. Engines that ignore
// ctx keep running in the background; their result is discarded.
func (p *Processor) recognizePage(ctx context.Context, img []byte) (string, error) {
	pageCtx, cancel := context.WithTimeout(ctx, p.opts.PageTimeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := p.engine.Recognize(pageCtx, img)
		done <- result{text: text, err: err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-pageCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("page OCR timed out after %s", p.opts.PageTimeout)
	}
}

func (p *Processor) Close() error {
	return p.engine.Close()
}
