package document

import (
	"context"
	"strings"
)

// Extraction methods recorded on chunks.
const (
	ExtractionText = "text"
	ExtractionOCR  = "ocr"
)

// Page is the text of one PDF page. Number starts at 1.
type Page struct {
	Number int
	Text   string
}

// Document is the text extracted from one file.
type Document struct {
	Pages      []Page
	Title      string
	Author     string
	Extraction string
}

// HasText reports whether any page carries non-whitespace text.
func (d *Document) HasText() bool {
	if d == nil {
		return false
	}
	for _, p := range d.Pages {
		if strings.TrimSpace(p.Text) != "" {
			return true
		}
	}
	return false
}

// Processor extracts text from the file at path.
type Processor interface {
	Extract(ctx context.Context, path string) (*Document, error)
	Close() error
}
