package models

import (
	"fmt"
	"time"
)

// ProcessingStatus is the lifecycle state of an uploaded document.
type ProcessingStatus string

const (
	StatusUploaded   ProcessingStatus = "uploaded"
	StatusProcessing ProcessingStatus = "processing"
	StatusDone       ProcessingStatus = "done"
	StatusFailed     ProcessingStatus = "failed"
)

// transitions lists the legal edges of the status state machine.
// Uploaded may fail directly when scheduling fails or the process restarts
// before the background task picked the document up.
var transitions = map[ProcessingStatus][]ProcessingStatus{
	StatusUploaded:   {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusDone, StatusFailed},
}

// Valid reports whether s is one of the known states.
func (s ProcessingStatus) Valid() bool {
	switch s {
	case StatusUploaded, StatusProcessing, StatusDone, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// CanTransition reports whether s -> next is a legal edge.
func (s ProcessingStatus) CanTransition(next ProcessingStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// DocumentRecord tracks one uploaded document through processing.
type DocumentRecord struct {
	ID          string           `json:"file_id"`
	Filename    string           `json:"filename"`
	Status      ProcessingStatus `json:"status"`
	Message     string           `json:"message"`
	Timestamp   time.Time        `json:"timestamp"`
	VectorCount int              `json:"vector_count,omitempty"`
}

// Transition moves the record to next, overwriting message and timestamp.
func (r *DocumentRecord) Transition(next ProcessingStatus, message string, at time.Time) error {
	if !r.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, r.Status, next, r.ID)
	}
	r.Status = next
	r.Message = message
	r.Timestamp = at
	return nil
}

// Chunk is a bounded slice of document text, the unit of embedding and retrieval.
type Chunk struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

// SearchResult is a chunk together with its similarity to the query.
type SearchResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Source is a retrieved chunk cited in an answer.
type Source struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Answer is the result of a question against the active index.
type Answer struct {
	Response string   `json:"response"`
	Sources  []Source `json:"sources"`
}
