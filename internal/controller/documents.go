package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"paperwing/internal/cache"
	"paperwing/internal/config"
	"paperwing/internal/database"
	"paperwing/internal/model"
	"paperwing/internal/orchestrator"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"
)

// ErrInvalidDocument marks upload rejections the client can fix. Handlers
// map it to a 400 instead of a 500.
var ErrInvalidDocument = errors.New("invalid document")

// UploadRequest carries one decoded multipart upload
type UploadRequest struct {
	Filename    string
	ContentType string
	Data        []byte
	Metadata    map[string]interface{}
	Priority    int
}

// StatusResponse is the client-facing view of a document's progress
type StatusResponse struct {
	DocumentID string               `json:"document_id"`
	Status     model.DocumentStatus `json:"status"`
	Progress   int                  `json:"progress"`
	Error      string               `json:"error,omitempty"`
	Events     []*model.StatusEvent `json:"events,omitempty"`
}

// Uploader stores the original document bytes durably before any
// processing starts.
type Uploader interface {
	UploadOriginal(ctx context.Context, documentID, filename string, body io.Reader) (string, error)
}

// DocumentController handles document intake and read operations
type DocumentController interface {
	// UploadDocument validates, stores, and enqueues one document
	UploadDocument(ctx context.Context, req UploadRequest) (*model.Document, *model.Job, error)

	// GetDocument returns a document with its extraction results
	GetDocument(ctx context.Context, id string) (*model.Document, error)

	// GetStatus returns the document's progress, served from a short-TTL cache
	GetStatus(ctx context.Context, id string) (*StatusResponse, error)

	// ListDocuments returns documents, newest first
	ListDocuments(ctx context.Context, limit, offset int) ([]*model.Document, error)
}

type documentController struct {
	db        database.Database
	cache     cache.Cache
	uploader  Uploader
	publisher orchestrator.StatusPublisher

	maxAttempts int
	statusTTL   time.Duration
}

// NewDocumentController creates a document controller
func NewDocumentController(db database.Database, c cache.Cache, uploader Uploader, publisher orchestrator.StatusPublisher, cfg *config.Config) DocumentController {
	return &documentController{
		db:          db,
		cache:       c,
		uploader:    uploader,
		publisher:   publisher,
		maxAttempts: cfg.Pipeline.MaxAttempts,
		statusTTL:   time.Duration(cfg.Redis.StatusTTLSeconds) * time.Second,
	}
}

// UploadDocument validates the PDF, stores the original bytes, and creates
// the document with its processing job. The job is picked up by the next
// tick; the upload path itself never talks to the extraction service.
func (dc *documentController) UploadDocument(ctx context.Context, req UploadRequest) (*model.Document, *model.Job, error) {
	if len(req.Data) == 0 {
		return nil, nil, fmt.Errorf("%w: empty file", ErrInvalidDocument)
	}
	if req.ContentType != "application/pdf" {
		return nil, nil, fmt.Errorf("%w: unsupported content type %q", ErrInvalidDocument, req.ContentType)
	}

	conf := pdfmodel.NewDefaultConfiguration()
	if err := api.Validate(bytes.NewReader(req.Data), conf); err != nil {
		return nil, nil, fmt.Errorf("%w: not a readable PDF: %v", ErrInvalidDocument, err)
	}
	pageCount, err := api.PageCount(bytes.NewReader(req.Data), conf)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: cannot count pages: %v", ErrInvalidDocument, err)
	}

	documentID := uuid.NewString()

	storagePath, err := dc.uploader.UploadOriginal(ctx, documentID, req.Filename, bytes.NewReader(req.Data))
	if err != nil {
		return nil, nil, fmt.Errorf("storing original document: %w", err)
	}

	doc := newUploadedDocument(documentID, req, storagePath, pageCount)
	if err := dc.db.CreateDocument(ctx, doc); err != nil {
		return nil, nil, fmt.Errorf("creating document record: %w", err)
	}

	job := &model.Job{
		ID:          uuid.NewString(),
		DocumentID:  documentID,
		Status:      model.JobQueued,
		MaxAttempts: dc.maxAttempts,
		Priority:    req.Priority,
	}
	if err := dc.db.CreateJob(ctx, job); err != nil {
		return nil, nil, fmt.Errorf("creating processing job: %w", err)
	}

	dc.emitStatus(ctx, documentID, "document received")

	log.Info().
		Str("documentID", documentID).
		Str("jobID", job.ID).
		Str("filename", req.Filename).
		Int("pageCount", pageCount).
		Int64("size", doc.FileSize).
		Msg("Document uploaded and queued")

	return doc, job, nil
}

// newUploadedDocument builds the initial document record. PageCount stays
// unset here: it is owned by the extraction result, and the count read at
// upload goes into metadata as an estimate.
func newUploadedDocument(documentID string, req UploadRequest, storagePath string, pageCount int) *model.Document {
	metadata := make(map[string]interface{}, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata[model.MetaPageCountEstimate] = pageCount

	return &model.Document{
		ID:          documentID,
		Filename:    req.Filename,
		Status:      model.DocumentQueued,
		FileSize:    int64(len(req.Data)),
		ContentType: req.ContentType,
		StoragePath: storagePath,
		Metadata:    metadata,
	}
}

// GetDocument implements DocumentController.
func (dc *documentController) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	return dc.db.GetDocumentByID(ctx, id)
}

// GetStatus serves progress from the cache when possible. The TTL is short
// enough that a polling client never sees a stale terminal state for more
// than a couple of seconds.
func (dc *documentController) GetStatus(ctx context.Context, id string) (*StatusResponse, error) {
	key := cache.StatusKey(id)

	if cached, err := dc.cache.Get(ctx, key); err == nil {
		var resp StatusResponse
		if err := json.Unmarshal(cached, &resp); err == nil {
			return &resp, nil
		}
		log.Warn().Str("documentID", id).Msg("Discarding undecodable cached status")
	}

	doc, err := dc.db.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	events, err := dc.db.ListStatusEvents(ctx, id, 50)
	if err != nil {
		log.Warn().Err(err).Str("documentID", id).Msg("Failed to load status events")
		events = nil
	}

	resp := &StatusResponse{
		DocumentID: id,
		Status:     doc.Status,
		Progress:   progressFor(doc.Status, events),
		Error:      doc.ProcessingError,
		Events:     events,
	}

	if body, err := json.Marshal(resp); err == nil {
		if err := dc.cache.Set(ctx, key, body, dc.statusTTL); err != nil {
			log.Warn().Err(err).Str("documentID", id).Msg("Failed to cache status response")
		}
	}

	return resp, nil
}

// ListDocuments implements DocumentController.
func (dc *documentController) ListDocuments(ctx context.Context, limit, offset int) ([]*model.Document, error) {
	return dc.db.ListDocuments(ctx, limit, offset)
}

// progressFor derives a progress figure: terminal states pin it, otherwise
// the latest event wins.
func progressFor(status model.DocumentStatus, events []*model.StatusEvent) int {
	switch status {
	case model.DocumentCompleted, model.DocumentError:
		return 100
	}
	if len(events) > 0 {
		return events[len(events)-1].Progress
	}
	return 0
}

func (dc *documentController) emitStatus(ctx context.Context, documentID, message string) {
	event := &model.StatusEvent{
		DocumentID: documentID,
		Status:     string(model.DocumentQueued),
		Progress:   0,
		Message:    message,
		CreatedAt:  time.Now(),
	}

	if err := dc.db.AppendStatusEvent(ctx, event); err != nil {
		log.Warn().Err(err).Str("documentID", documentID).Msg("Failed to append status event")
	}
	if dc.publisher != nil {
		if err := dc.publisher.PublishStatus(ctx, event); err != nil {
			log.Warn().Err(err).Str("documentID", documentID).Msg("Failed to publish status event")
		}
	}
}
