package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/pdf-rag/internal/models"
	"github.com/feichai0017/pdf-rag/pkg/logger"
)

type DocumentHandler struct {
	service DocumentService
	logger  logger.Logger
}

// UploadedFile reports the outcome for one file of an upload.
type UploadedFile struct {
	FileID   string                  `json:"file_id,omitempty"`
	Filename string                  `json:"filename"`
	Status   models.ProcessingStatus `json:"status"`
	Error    string                  `json:"error,omitempty"`
}

type UploadResponse struct {
	Message string         `json:"message"`
	Files   []UploadedFile `json:"files"`
}

type QueryRequest struct {
	Query string `json:"query"`
}

func NewDocumentHandler(service DocumentService, log logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		service: service,
		logger:  log.Named("http"),
	}
}

// Upload accepts one or more PDFs in the "files" form field. Files that are
// not PDFs are skipped; a failure on one file does not affect the others.
func (h *DocumentHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid form data", err)
		return
	}

	var (
		files    []UploadedFile
		accepted int
		firstErr error
	)
	for _, header := range form.File["files"] {
		f, err := header.Open()
		if err != nil {
			h.logger.Warn("Failed to open uploaded file", logger.String("filename", header.Filename), logger.Error(err))
			continue
		}
		rec, err := h.service.SubmitDocument(c.Request.Context(), header.Filename, header.Size, f)
		f.Close()

		switch {
		case errors.Is(err, models.ErrUnsupportedFormat):
			h.logger.Info("Skipping unsupported file", logger.String("filename", header.Filename))
		case err != nil:
			if firstErr == nil {
				firstErr = err
			}
			h.logger.Error("Failed to accept file", logger.String("filename", header.Filename), logger.Error(err))
			files = append(files, UploadedFile{
				Filename: header.Filename,
				Status:   models.StatusFailed,
				Error:    err.Error(),
			})
		default:
			accepted++
			files = append(files, UploadedFile{
				FileID:   rec.ID,
				Filename: rec.Filename,
				Status:   rec.Status,
			})
		}
	}

	if len(files) == 0 {
		h.handleError(c, http.StatusBadRequest, "No valid PDF files provided", nil)
		return
	}
	if accepted == 0 {
		h.handleError(c, statusFor(firstErr), "Failed to accept files", firstErr)
		return
	}

	c.JSON(http.StatusAccepted, UploadResponse{
		Message: fmt.Sprintf("Accepted %d of %d files for processing", accepted, len(files)),
		Files:   files,
	})
}

func (h *DocumentHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	answer, err := h.service.Query(c.Request.Context(), req.Query)
	if err != nil {
		msg := "Failed to answer query"
		if errors.Is(err, models.ErrNoDocuments) {
			msg = "No documents have been processed yet"
		}
		h.handleError(c, statusFor(err), msg, err)
		return
	}
	if answer.Sources == nil {
		answer.Sources = []models.Source{}
	}
	c.JSON(http.StatusOK, answer)
}

func (h *DocumentHandler) GetStatus(c *gin.Context) {
	rec, err := h.service.GetStatus(c.Param("id"))
	if err != nil {
		h.handleError(c, statusFor(err), "File not found", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"documents": h.service.ListStatuses()})
}

// Cleanup removes documents older than max_age_hours, default 24.
func (h *DocumentHandler) Cleanup(c *gin.Context) {
	hours, err := strconv.Atoi(c.DefaultQuery("max_age_hours", "24"))
	if err != nil || hours < 0 {
		h.handleError(c, http.StatusBadRequest, "max_age_hours must be a non-negative integer", err)
		return
	}

	removed, err := h.service.Cleanup(c.Request.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Cleanup failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Removed %d documents", removed),
		"removed": removed,
	})
}

func (h *DocumentHandler) handleError(c *gin.Context, status int, message string, err error) {
	fields := []logger.Field{
		logger.String("path", c.Request.URL.Path),
		logger.Int("status", status),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, fields...)
	} else {
		h.logger.Warn(message, fields...)
	}

	response := ErrorResponse{Message: message}
	if err != nil {
		response.Error = err.Error()
	}
	c.JSON(status, response)
}
