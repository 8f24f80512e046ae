package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-rag/api/handlers"
	"github.com/feichai0017/pdf-rag/internal/models"
	"github.com/feichai0017/pdf-rag/pkg/logger"
)

type fakeService struct {
	mu        sync.Mutex
	submitted []string
	submitErr map[string]error
	queryErr  error
	answer    models.Answer
	records   map[string]models.DocumentRecord
	cleanedAt time.Duration
}

func (f *fakeService) SubmitDocument(ctx context.Context, filename string, size int64, r io.Reader) (models.DocumentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !strings.HasSuffix(filename, ".pdf") {
		return models.DocumentRecord{}, models.ErrUnsupportedFormat
	}
	if err := f.submitErr[filename]; err != nil {
		return models.DocumentRecord{}, err
	}
	f.submitted = append(f.submitted, filename)
	return models.DocumentRecord{ID: "id_" + filename, Filename: filename, Status: models.StatusUploaded}, nil
}

func (f *fakeService) GetStatus(id string) (models.DocumentRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return models.DocumentRecord{}, models.ErrNotFound
	}
	return rec, nil
}

func (f *fakeService) ListStatuses() []models.DocumentRecord {
	out := make([]models.DocumentRecord, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r)
	}
	return out
}

func (f *fakeService) Query(ctx context.Context, text string) (models.Answer, error) {
	if strings.TrimSpace(text) == "" {
		return models.Answer{}, models.ErrEmptyQuery
	}
	return f.answer, f.queryErr
}

func (f *fakeService) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	f.cleanedAt = maxAge
	return len(f.records), nil
}

func newRouter(svc *fakeService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	log := logger.NewTestLogger()
	SetupRoutes(r, handlers.NewHandlers(svc, log), []string{"http://localhost:3000"}, log)
	return r
}

func multipartBody(t *testing.T, names ...string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, name := range names {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte("%PDF-1.4 " + name))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func doUpload(t *testing.T, r *gin.Engine, names ...string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, names...)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestUpload(t *testing.T) {
	svc := &fakeService{submitErr: map[string]error{
		"broken.pdf": fmt.Errorf("%w: disk full", models.ErrStorage),
	}}
	r := newRouter(svc)

	w := doUpload(t, r, "a.pdf", "notes.txt", "broken.pdf", "b.pdf")
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp handlers.UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Files, 3)
	assert.Equal(t, "id_a.pdf", resp.Files[0].FileID)
	assert.Equal(t, models.StatusUploaded, resp.Files[0].Status)
	assert.Equal(t, models.StatusFailed, resp.Files[1].Status)
	assert.Contains(t, resp.Files[1].Error, "disk full")
	assert.Equal(t, "b.pdf", resp.Files[2].Filename)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, svc.submitted)
}

func TestUpload_NoValidFiles(t *testing.T) {
	r := newRouter(&fakeService{})

	w := doUpload(t, r, "notes.txt", "image.png")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doUpload(t, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpload_QueueFull(t *testing.T) {
	r := newRouter(&fakeService{submitErr: map[string]error{"a.pdf": models.ErrQueueFull}})

	w := doUpload(t, r, "a.pdf")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func postQuery(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestQuery(t *testing.T) {
	svc := &fakeService{answer: models.Answer{
		Response: "42",
		Sources:  []models.Source{{Content: "the answer is 42", Metadata: map[string]interface{}{"source": "a.pdf"}}},
	}}
	r := newRouter(svc)

	w := postQuery(r, `{"query":"what is the answer?"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var answer models.Answer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &answer))
	assert.Equal(t, "42", answer.Response)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "a.pdf", answer.Sources[0].Metadata["source"])
}

func TestQuery_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"empty query", `{"query":"  "}`, nil, http.StatusBadRequest},
		{"bad json", `{"query":`, nil, http.StatusBadRequest},
		{"no documents", `{"query":"q"}`, models.ErrNoDocuments, http.StatusConflict},
		{"llm failure", `{"query":"q"}`, fmt.Errorf("failed to generate answer: %w", io.ErrUnexpectedEOF), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postQuery(newRouter(&fakeService{queryErr: tt.err}), tt.body)
			assert.Equal(t, tt.want, w.Code)

			var resp handlers.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestStatus(t *testing.T) {
	svc := &fakeService{records: map[string]models.DocumentRecord{
		"x_a.pdf": {ID: "x_a.pdf", Filename: "a.pdf", Status: models.StatusDone, VectorCount: 3},
	}}
	r := newRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status/x_a.pdf", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var rec models.DocumentRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, models.StatusDone, rec.Status)
	assert.Equal(t, 3, rec.VectorCount)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCleanup(t *testing.T) {
	svc := &fakeService{records: map[string]models.DocumentRecord{"a": {}, "b": {}}}
	r := newRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/cleanup?max_age_hours=0", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Duration(0), svc.cleanedAt)
	assert.Contains(t, w.Body.String(), `"removed":2`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/cleanup", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 24*time.Hour, svc.cleanedAt)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/cleanup?max_age_hours=-1", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCORS(t *testing.T) {
	r := newRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodOptions, "/api/query", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
