package pdf

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/pdf-rag/internal/agent/document"
	"github.com/feichai0017/pdf-rag/internal/models"
	"github.com/feichai0017/pdf-rag/pkg/logger"
)

// DefaultMaxWorkers bounds concurrent page extraction.
const DefaultMaxWorkers = 4

// Processor extracts the embedded text layer of a PDF.
type Processor struct {
	logger     logger.Logger
	maxWorkers int

	// pageTextFn decodes one page. The decoder takes no context, so callers
	// bound it with pageTextCtx.
	pageTextFn func(r *pdf.Reader, pageNum int) string
}

func NewProcessor(log logger.Logger) *Processor {
	p := &Processor{
		logger:     log.Named("pdf"),
		maxWorkers: DefaultMaxWorkers,
	}
	p.pageTextFn = p.pageText
	return p
}

// Extract reads every page's plain text. Pages whose text cannot be decoded
// are logged and left empty so a partly broken text layer still yields the
// rest of the document.
func (p *Processor) Extract(ctx context.Context, path string) (doc *document.Document, err error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", models.ErrExtraction, path, err)
	}

	// the parser panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("%w: malformed PDF: %v", models.ErrExtraction, r)
		}
	}()

	reader := bytes.NewReader(content)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open PDF: %v", models.ErrExtraction, err)
	}

	numPages := pdfReader.NumPage()
	pages := make([]document.Page, numPages)

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, p.maxWorkers)

	for i := 1; i <= numPages; i++ {
		pageNum := i
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}

			text, err := p.pageTextCtx(gctx, pdfReader, pageNum)
			if err != nil {
				return fmt.Errorf("%w: page %d: %v", models.ErrExtraction, pageNum, err)
			}
			pages[pageNum-1] = document.Page{Number: pageNum, Text: text}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	doc = &document.Document{Pages: pages, Extraction: document.ExtractionText}
	doc.Title, doc.Author = info(pdfReader)

	p.logger.Debug("Extracted text layer",
		logger.String("path", path),
		logger.Int("pages", numPages),
	)
	return doc, nil
}

// pageTextCtx returns once the page is decoded or ctx is done. A decoder
// stuck on a malformed page is abandoned and its result discarded.
func (p *Processor) pageTextCtx(ctx context.Context, r *pdf.Reader, pageNum int) (string, error) {
	done := make(chan string, 1)
	go func() {
		done <- p.pageTextFn(r, pageNum)
	}()

	select {
	case text := <-done:
		return text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *Processor) pageText(r *pdf.Reader, pageNum int) (text string) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Warn("Page text decoding panicked", logger.Int("page", pageNum), logger.Any("panic", rec))
			text = ""
		}
	}()

	page := r.Page(pageNum)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		p.logger.Warn("Failed to get page text", logger.Int("page", pageNum), logger.Error(err))
		return ""
	}
	return cleanText(text)
}

func info(r *pdf.Reader) (title, author string) {
	trailer := r.Trailer()
	if trailer.IsNull() {
		return "", ""
	}
	inf := trailer.Key("Info")
	if inf.IsNull() {
		return "", ""
	}
	if v := inf.Key("Title"); !v.IsNull() {
		title = v.Text()
	}
	if v := inf.Key("Author"); !v.IsNull() {
		author = v.Text()
	}
	return strings.TrimSpace(title), strings.TrimSpace(author)
}

// cleanText drops NUL bytes and trailing blanks on each line.
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func (p *Processor) Close() error {
	return nil
}
