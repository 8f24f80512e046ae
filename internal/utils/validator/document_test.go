package validator

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-rag/internal/models"
	"github.com/feichai0017/pdf-rag/internal/testutil"
	"github.com/feichai0017/pdf-rag/pkg/logger"
)

func newValidator(max int64) *DocumentValidator {
	cfg := DefaultConfig()
	cfg.MaxFileSize = max
	return NewDocumentValidator(logger.NewTestLogger(), cfg)
}

func TestValidateName(t *testing.T) {
	v := newValidator(0)

	tests := []struct {
		name    string
		wantErr bool
	}{
		{"report.pdf", false},
		{"REPORT.PDF", false},
		{"notes.txt", true},
		{"pdf", true},
		{"archive.pdf.zip", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateName(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrUnsupportedFormat)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateSize(t *testing.T) {
	v := newValidator(10)
	assert.NoError(t, v.ValidateSize(10))
	assert.NoError(t, v.ValidateSize(-1))
	assert.ErrorIs(t, v.ValidateSize(11), models.ErrFileTooLarge)

	assert.NoError(t, newValidator(0).ValidateSize(1<<40))
}

func TestValidateContent(t *testing.T) {
	v := newValidator(0)
	pdf := testutil.MinimalPDF("hello")

	r, err := v.ValidateContent("a.pdf", strings.NewReader(string(pdf)))
	require.NoError(t, err)
	replayed, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, pdf, replayed)

	_, err = v.ValidateContent("a.pdf", strings.NewReader("just some text"))
	assert.ErrorIs(t, err, models.ErrUnsupportedFormat)

	_, err = v.ValidateContent("a.pdf", strings.NewReader(""))
	assert.ErrorIs(t, err, models.ErrUnsupportedFormat)
}

func TestValidateContentEnforcesLimitWhileReading(t *testing.T) {
	v := newValidator(16)
	r, err := v.ValidateContent("a.pdf", strings.NewReader("%PDF-1.4\n"+strings.Repeat("x", 64)))
	require.NoError(t, err)

	_, err = io.ReadAll(r)
	assert.True(t, errors.Is(err, models.ErrFileTooLarge))
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"report.pdf":        "report.pdf",
		"../../etc/passwd":  "passwd",
		"..\\win\\file.pdf": "file.pdf",
		"my report.pdf":     "my_report.pdf",
		".hidden.pdf":       "hidden.pdf",
		"":                  "document.pdf",
		"/":                 "document.pdf",
		"bad\x00name\n.pdf": "badname.pdf",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFilename(in), "input %q", in)
	}
}
