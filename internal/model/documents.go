package model

import "time"

// DocumentStatus represents the current state of an uploaded document
type DocumentStatus string

const (
	DocumentUploading  DocumentStatus = "uploading"
	DocumentQueued     DocumentStatus = "queued"
	DocumentProcessing DocumentStatus = "processing"
	DocumentCompleted  DocumentStatus = "completed"
	DocumentError      DocumentStatus = "error"
)

// Metadata keys used to mark a degraded-success outcome where extraction
// succeeded but embeddings could not be generated.
const (
	MetaEmbeddingsSkipped = "embeddings_skipped"
	MetaEmbeddingsError   = "embeddings_error"
)

// MetaPageCountEstimate carries the page count read from the PDF at upload
// time. The authoritative page_count field is written only when extraction
// completes.
const MetaPageCountEstimate = "page_count_estimate"

// Document represents one uploaded file and its extraction results
type Document struct {
	ID              string                 `bson:"_id" json:"id"`
	Filename        string                 `bson:"filename" json:"filename"`
	Status          DocumentStatus         `bson:"status" json:"status"`
	FileSize        int64                  `bson:"file_size" json:"file_size"`
	ContentType     string                 `bson:"content_type" json:"content_type"`
	StoragePath     string                 `bson:"storage_path" json:"storage_path"`
	ExtractedText   string                 `bson:"extracted_text,omitempty" json:"extracted_text,omitempty"`
	ExtractedFields map[string]interface{} `bson:"extracted_fields,omitempty" json:"extracted_fields,omitempty"`
	PageCount       int                    `bson:"page_count,omitempty" json:"page_count,omitempty"`
	ProcessingError string                 `bson:"processing_error,omitempty" json:"processing_error,omitempty"`
	Metadata        map[string]interface{} `bson:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt       time.Time              `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time              `bson:"updated_at" json:"updated_at"`
}

// StatusEvent is one append-only progress log entry for a document.
// Written by the orchestrator and the embedding pipeline, read by
// external status consumers; never mutated.
type StatusEvent struct {
	DocumentID string    `bson:"document_id" json:"document_id"`
	Status     string    `bson:"status" json:"status"`
	Progress   int       `bson:"progress" json:"progress"`
	Message    string    `bson:"message,omitempty" json:"message,omitempty"`
	Error      string    `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}
