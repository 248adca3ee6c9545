package models

import "time"

// Document processing states. A document is created as StatusPending on
// upload acceptance and advances as the ingestion pipeline runs.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// Document is the metadata record for one uploaded manual.
type Document struct {
	ID          int64     `json:"id"`
	Filename    string    `json:"filename"`
	UploadedAt  time.Time `json:"uploaded_at"`
	Status      string    `json:"status"`
	ChunksCount int       `json:"chunks_count"`
}

// Chunk is a bounded slice of a document's extracted text, independently
// embedded and retrievable. Immutable once written.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID int64     `json:"document_id"`
	Ordinal    int       `json:"ordinal"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding,omitempty"`
}
