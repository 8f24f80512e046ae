// Package textract recognises page images with AWS Textract.
package textract

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/feichai0017/pdf-rag/pkg/logger"
)

// API is the part of the Textract client the engine uses.
type API interface {
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

type Config struct {
	Region        string
	AccessKey     string
	SecretKey     string
	MinConfidence float32
}

// Engine implements ocr.Engine over the synchronous DetectDocumentText call.
type Engine struct {
	client        API
	minConfidence float32
	logger        logger.Logger
}

// NewEngine loads AWS config. Static credentials are used when both keys are
// set, otherwise the default provider chain applies.
func NewEngine(ctx context.Context, cfg Config, log logger.Logger) (*Engine, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}
	return NewEngineWithClient(textract.NewFromConfig(awsCfg), cfg.MinConfidence, log), nil
}

func NewEngineWithClient(client API, minConfidence float32, log logger.Logger) *Engine {
	return &Engine{client: client, minConfidence: minConfidence, logger: log.Named("textract")}
}

func (e *Engine) Recognize(ctx context.Context, image []byte) (string, error) {
	out, err := e.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: image},
	})
	if err != nil {
		return "", fmt.Errorf("failed to detect document text: %w", err)
	}

	var lines []string
	dropped := 0
	for _, block := range out.Blocks {
		if block.BlockType != types.BlockTypeLine || block.Text == nil {
			continue
		}
		if block.Confidence != nil && *block.Confidence < e.minConfidence {
			dropped++
			continue
		}
		lines = append(lines, aws.ToString(block.Text))
	}
	if dropped > 0 {
		e.logger.Debug("Dropped low confidence lines", logger.Int("lines", dropped))
	}
	return strings.Join(lines, "\n"), nil
}

func (e *Engine) Close() error {
	return nil
}
