package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Rasterizer renders every page of a PDF to an encoded image, in page order.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath string) ([][]byte, error)
}

// PdftoppmRasterizer shells out to poppler's pdftoppm.
type PdftoppmRasterizer struct {
	Binary string
	DPI    int
}

func NewPdftoppmRasterizer(binary string, dpi int) *PdftoppmRasterizer {
	if binary == "" {
		binary = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = 300
	}
	return &PdftoppmRasterizer{Binary: binary, DPI: dpi}
}

// Rasterize writes PNG pages into a private temp dir and returns their bytes.
// Cancelling ctx kills the child process.
func (r *PdftoppmRasterizer) Rasterize(ctx context.Context, pdfPath string) ([][]byte, error) {
	if _, err := exec.LookPath(r.Binary); err != nil {
		return nil, fmt.Errorf("pdftoppm not found: %w", err)
	}

	dir, err := os.MkdirTemp("", "pdfrag-pages-")
	if err != nil {
		return nil, fmt.Errorf("failed to create page dir: %w", err)
	}
	defer os.RemoveAll(dir)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Binary, "-r", strconv.Itoa(r.DPI), "-png", pdfPath, filepath.Join(dir, "page"))
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("pdftoppm failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list rendered pages: %w", err)
	}

	type rendered struct {
		num  int
		name string
	}
	var files []rendered
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".png") {
			continue
		}
		// pdftoppm names pages page-1.png or page-01.png depending on page count
		stem := strings.TrimSuffix(name, ".png")
		n, err := strconv.Atoi(stem[strings.LastIndex(stem, "-")+1:])
		if err != nil {
			continue
		}
		files = append(files, rendered{num: n, name: name})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].num < files[j].num })

	pages := make([][]byte, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, f.name))
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %w", f.num, err)
		}
		pages = append(pages, data)
	}
	return pages, nil
}
