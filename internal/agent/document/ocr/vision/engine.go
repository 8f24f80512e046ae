// Package vision transcribes page images with a multimodal language model
// served by Ollama.
package vision

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/feichai0017/pdf-rag/pkg/logger"
)

const defaultPrompt = "Transcribe all text in this scanned page exactly as written. " +
	"Output only the text, preserving line breaks. Output nothing if the page has no text."

type Config struct {
	Model       string
	OllamaHost  string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Engine implements ocr.Engine over any llms.Model that accepts images.
type Engine struct {
	model  llms.Model
	cfg    Config
	client *http.Client
	logger logger.Logger
}

func NewEngine(cfg Config, log logger.Logger) (*Engine, error) {
	client := &http.Client{}
	model, err := ollama.New(
		ollama.WithModel(cfg.Model),
		ollama.WithServerURL(cfg.OllamaHost),
		ollama.WithHTTPClient(client),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama vision model: %w", err)
	}
	e := NewEngineWithModel(model, cfg, log)
	e.client = client
	return e, nil
}

func NewEngineWithModel(model llms.Model, cfg Config, log logger.Logger) *Engine {
	if cfg.Prompt == "" {
		cfg.Prompt = defaultPrompt
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	return &Engine{
		model:  model,
		cfg:    cfg,
		logger: log.Named("vision"),
	}
}

func (e *Engine) Recognize(ctx context.Context, img []byte) (string, error) {
	messages := []llms.MessageContent{{
		Role: llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{
			llms.BinaryPart(http.DetectContentType(img), img),
			llms.TextPart(e.cfg.Prompt),
		},
	}}

	resp, err := e.model.GenerateContent(ctx, messages,
		llms.WithMaxTokens(e.cfg.MaxTokens),
		llms.WithTemperature(e.cfg.Temperature),
	)
	if err != nil {
		return "", fmt.Errorf("failed to analyze image: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("failed to analyze image: no response choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Content)
	e.logger.Debug("Page transcribed", logger.Int("chars", len(text)))
	return text, nil
}

func (e *Engine) Close() error {
	if e.client != nil {
		e.client.CloseIdleConnections()
	}
	return nil
}
