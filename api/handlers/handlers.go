package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/pdf-rag/internal/models"
	"github.com/feichai0017/pdf-rag/pkg/logger"
)

// DocumentService is the behaviour the HTTP layer needs from the vector
// store manager.
type DocumentService interface {
	SubmitDocument(ctx context.Context, filename string, size int64, r io.Reader) (models.DocumentRecord, error)
	GetStatus(id string) (models.DocumentRecord, error)
	ListStatuses() []models.DocumentRecord
	Query(ctx context.Context, text string) (models.Answer, error)
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
}

type Handlers struct {
	Document *DocumentHandler
	Health   gin.HandlerFunc
}

func NewHandlers(service DocumentService, log logger.Logger) *Handlers {
	return &Handlers{
		Document: NewDocumentHandler(service, log),
		Health:   HealthCheck,
	}
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrUnsupportedFormat),
		errors.Is(err, models.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNoDocuments):
		return http.StatusConflict
	case errors.Is(err, models.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
