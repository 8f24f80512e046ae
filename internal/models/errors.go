package models

import "errors"

// Validation errors, surfaced synchronously to callers.
var (
	// ErrUnsupportedFormat indicates an upload whose name or content is not a PDF.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrFileTooLarge indicates an upload above the configured size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrEmptyQuery indicates a blank question.
	ErrEmptyQuery = errors.New("empty query")
)

// Lookup and availability errors.
var (
	ErrNotFound = errors.New("not found")

	// ErrNoDocuments indicates there is no processed document to query against.
	ErrNoDocuments = errors.New("no documents available for querying")

	// ErrQueueFull indicates the background task queue rejected new work.
	ErrQueueFull = errors.New("task queue full")
)

// Processing errors. These are recorded on the document as Failed and are
// only observable through later status reads.
var (
	ErrExtraction       = errors.New("text extraction failed")
	ErrOCRFailure       = errors.New("OCR failed")
	ErrEmbeddingFailure = errors.New("embedding failed")
	ErrEmptyInput       = errors.New("no chunks to index")
	ErrStorage          = errors.New("storage error")
)

// Recoverable persistence errors. Callers treat the data as empty or absent.
var (
	ErrCorruptStatusFile = errors.New("corrupt status file")
	ErrCorruptIndex      = errors.New("corrupt vector index")
)

// ErrInvalidTransition indicates an illegal status change.
var ErrInvalidTransition = errors.New("invalid status transition")
