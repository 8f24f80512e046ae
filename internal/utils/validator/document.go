package validator

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/feichai0017/pdf-rag/internal/models"
	"github.com/feichai0017/pdf-rag/pkg/logger"
)

// sniffLen is how many leading bytes are inspected for content detection.
const sniffLen = 512

var pdfMagic = []byte("%PDF-")

// DocumentValidator checks uploads before they are accepted.
type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

type ValidatorConfig struct {
	MaxFileSize  int64               // bytes, 0 means unlimited
	AllowedTypes map[string][]string // extension -> accepted MIME types
}

// DefaultConfig accepts PDFs up to 50MB.
func DefaultConfig() *ValidatorConfig {
	return &ValidatorConfig{
		MaxFileSize: 50 * 1024 * 1024,
		AllowedTypes: map[string][]string{
			".pdf": {"application/pdf"},
		},
	}
}

func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = DefaultConfig()
	}
	return &DocumentValidator{
		logger: log.Named("validator"),
		config: config,
	}
}

// ValidateName rejects files whose extension is not accepted.
func (v *DocumentValidator) ValidateName(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := v.config.AllowedTypes[ext]; !ok {
		return fmt.Errorf("%w: %q", models.ErrUnsupportedFormat, filename)
	}
	return nil
}

// ValidateSize rejects files above the configured limit. A negative size
// means unknown and is checked later while reading.
func (v *DocumentValidator) ValidateSize(size int64) error {
	if v.config.MaxFileSize > 0 && size > v.config.MaxFileSize {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", models.ErrFileTooLarge, size, v.config.MaxFileSize)
	}
	return nil
}

// ValidateContent sniffs the head of r and returns a reader that replays
// the whole stream. Content that does not match the extension's MIME types
// is rejected with ErrUnsupportedFormat.
func (v *DocumentValidator) ValidateContent(filename string, r io.Reader) (io.Reader, error) {
	br := bufio.NewReaderSize(r, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	mimeType := http.DetectContentType(head)
	if ext == ".pdf" && !bytes.HasPrefix(head, pdfMagic) {
		return nil, fmt.Errorf("%w: %q is not a PDF", models.ErrUnsupportedFormat, filename)
	}
	if !v.mimeAllowed(ext, mimeType) {
		v.logger.Warn("Rejected upload content",
			logger.String("filename", filename),
			logger.String("mime_type", mimeType),
		)
		return nil, fmt.Errorf("%w: invalid MIME type %s for extension %s", models.ErrUnsupportedFormat, mimeType, ext)
	}

	if v.config.MaxFileSize > 0 {
		return &limitedReader{r: br, remaining: v.config.MaxFileSize}, nil
	}
	return br, nil
}

func (v *DocumentValidator) mimeAllowed(ext, mimeType string) bool {
	for _, m := range v.config.AllowedTypes[ext] {
		if m == mimeType {
			return true
		}
	}
	return false
}

// limitedReader fails once more than remaining bytes have been read.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, models.ErrFileTooLarge
	}
	return n, err
}

// SanitizeFilename reduces name to a base name that is safe to embed in a
// path segment.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == 0:
		case unicode.IsControl(r):
		case unicode.IsSpace(r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "document.pdf"
	}
	return out
}
