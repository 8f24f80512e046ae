// Package embedding maps text to fixed-length vectors.
package embedding

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/feichai0017/pdf-rag/pkg/logger"
)

// Embedder has the same method set as langchaingo's embeddings.Embedder, so
// any langchaingo embedder can be passed where one is expected.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

const (
	ProviderOllama  = "ollama"
	ProviderOpenAI  = "openai"
	ProviderHashing = "hashing"
)

// Config selects and configures an embedding backend.
type Config struct {
	Provider   string
	Model      string
	OllamaHost string
	BaseURL    string
	APIKey     string
	// Dimension is enforced on every vector when positive.
	Dimension int
}

// New builds the embedder named by cfg.Provider.
func New(cfg Config, log logger.Logger) (Embedder, error) {
	var (
		inner embeddings.Embedder
		err   error
	)

	switch cfg.Provider {
	case ProviderOllama:
		llm, ollamaErr := ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if ollamaErr != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", ollamaErr)
		}
		inner, err = embeddings.NewEmbedder(llm)

	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithEmbeddingModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, openaiErr := openai.New(opts...)
		if openaiErr != nil {
			return nil, fmt.Errorf("failed to create openai client: %w", openaiErr)
		}
		inner, err = embeddings.NewEmbedder(llm)

	case ProviderHashing:
		return NewHashingEmbedder(cfg.Dimension), nil

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s embedder: %w", cfg.Provider, err)
	}

	return &Validated{
		inner:     inner,
		dimension: cfg.Dimension,
		model:     cfg.Model,
		log:       log.Named("embedding"),
	}, nil
}
