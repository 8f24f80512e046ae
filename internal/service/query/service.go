// Package query answers questions from retrieved document chunks.
package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/feichai0017/pdf-rag/internal/models"
	"github.com/feichai0017/pdf-rag/pkg/logger"
)

const systemPrompt = "Answer the questions based on the provided context only.\n" +
	"Please provide the most accurate response based on the question."

// Retriever returns the chunks most similar to text, closest first.
type Retriever interface {
	Search(ctx context.Context, text string, k int) ([]models.SearchResult, error)
}

// Answerer produces an answer for question using retriever as context source.
type Answerer interface {
	Answer(ctx context.Context, question string, retriever Retriever) (models.Answer, error)
}

type Options struct {
	K           int
	Temperature float64
}

// Service stuffs the retrieved chunks into a single prompt.
type Service struct {
	llm    llms.Model
	opts   Options
	logger logger.Logger
}

func NewService(llm llms.Model, opts Options, log logger.Logger) *Service {
	if opts.K <= 0 {
		opts.K = 4
	}
	return &Service{
		llm:    llm,
		opts:   opts,
		logger: log.Named("query"),
	}
}

func (s *Service) Answer(ctx context.Context, question string, retriever Retriever) (models.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return models.Answer{}, models.ErrEmptyQuery
	}

	results, err := retriever.Search(ctx, question, s.opts.K)
	if err != nil {
		return models.Answer{}, fmt.Errorf("failed to retrieve context: %w", err)
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt(question, results)),
	}

	var callOpts []llms.CallOption
	if s.opts.Temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(s.opts.Temperature))
	}

	resp, err := s.llm.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return models.Answer{}, fmt.Errorf("failed to generate answer: %w", err)
	}
	if len(resp.Choices) == 0 {
		return models.Answer{}, fmt.Errorf("failed to generate answer: no response choices")
	}

	sources := make([]models.Source, len(results))
	for i, r := range results {
		sources[i] = models.Source{Content: r.Chunk.Content, Metadata: r.Chunk.Metadata}
	}

	s.logger.Debug("Answered query",
		logger.Int("sources", len(sources)),
		logger.Int("answer_len", len(resp.Choices[0].Content)),
	)

	return models.Answer{
		Response: resp.Choices[0].Content,
		Sources:  sources,
	}, nil
}

func userPrompt(question string, results []models.SearchResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Chunk.Content
	}

	var b strings.Builder
	b.WriteString("<context>\n")
	b.WriteString(strings.Join(parts, "\n\n"))
	b.WriteString("\n<context>\n")
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}
