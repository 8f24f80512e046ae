// Package tesseract recognises page images with a local Tesseract install.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/feichai0017/pdf-rag/internal/agent/document/ocr"
	"github.com/feichai0017/pdf-rag/pkg/logger"
)

// Options configures recognition.
type Options struct {
	Languages   []string
	PageSegMode gosseract.PageSegMode
	// Preprocess enables the image pipeline. Nil Pipeline means ocr.DefaultPipeline.
	Preprocess bool
	Pipeline   []ocr.Preprocessor
}

// Engine implements ocr.Engine. A fresh Tesseract client is created per
// page, so pages can be recognised concurrently.
type Engine struct {
	opts   Options
	logger logger.Logger
}

func NewEngine(opts Options, log logger.Logger) *Engine {
	if len(opts.Languages) == 0 {
		opts.Languages = []string{"eng"}
	}
	if opts.PageSegMode == 0 {
		opts.PageSegMode = gosseract.PSM_AUTO
	}
	if opts.Preprocess && opts.Pipeline == nil {
		opts.Pipeline = ocr.DefaultPipeline()
	}
	return &Engine{opts: opts, logger: log.Named("tesseract")}
}

func (e *Engine) Recognize(ctx context.Context, data []byte) (string, error) {
	if e.opts.Preprocess {
		prepared, err := e.preprocess(data)
		if err != nil {
			return "", err
		}
		data = prepared
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(strings.Join(e.opts.Languages, "+")); err != nil {
		return "", fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(e.opts.PageSegMode); err != nil {
		return "", fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("failed to get text: %w", err)
	}
	return text, nil
}

func (e *Engine) preprocess(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	processed, err := ocr.ApplyPipeline(img, e.opts.Pipeline)
	if err != nil {
		e.logger.Error("Preprocessing failed", logger.Error(err))
		return nil, err
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, processed, &jpeg.Options{Quality: 100}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Engine) Close() error {
	return nil
}
