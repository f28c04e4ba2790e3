package controller

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"paperwing/internal/cache"
	"paperwing/internal/database"
	"paperwing/internal/model"
)

// stubDB embeds the interface so each test only fills in what it touches
type stubDB struct {
	database.Database
	doc    *model.Document
	events []*model.StatusEvent
}

func (s *stubDB) GetDocumentByID(ctx context.Context, id string) (*model.Document, error) {
	if s.doc == nil || s.doc.ID != id {
		return nil, database.ErrNotFound
	}
	return s.doc, nil
}

func (s *stubDB) ListStatusEvents(ctx context.Context, documentID string, limit int) ([]*model.StatusEvent, error) {
	return s.events, nil
}

type memCache struct {
	data map[string][]byte
	sets int
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return v, nil
}

func (m *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	m.sets++
	return nil
}

func (m *memCache) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func (m *memCache) Ping(ctx context.Context) error { return nil }
func (m *memCache) Close() error                   { return nil }

func TestUploadDocument_RejectsEmptyFile(t *testing.T) {
	dc := &documentController{}

	_, _, err := dc.UploadDocument(context.Background(), UploadRequest{
		Filename:    "empty.pdf",
		ContentType: "application/pdf",
	})
	if !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
}

func TestUploadDocument_RejectsNonPDF(t *testing.T) {
	dc := &documentController{}

	_, _, err := dc.UploadDocument(context.Background(), UploadRequest{
		Filename:    "notes.docx",
		ContentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Data:        []byte("PK..."),
	})
	if !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
}

func TestNewUploadedDocument_PageCountDeferredToExtraction(t *testing.T) {
	req := UploadRequest{
		Filename:    "report.pdf",
		ContentType: "application/pdf",
		Data:        []byte("%PDF-1.7 ..."),
		Metadata:    map[string]interface{}{"department": "finance"},
	}

	doc := newUploadedDocument("doc-1", req, "uploads/doc-1/report.pdf", 12)

	if doc.PageCount != 0 {
		t.Errorf("page count must stay unset until extraction completes, got %d", doc.PageCount)
	}
	if got := doc.Metadata[model.MetaPageCountEstimate]; got != 12 {
		t.Errorf("expected page count estimate 12 in metadata, got %v", got)
	}
	if got := doc.Metadata["department"]; got != "finance" {
		t.Errorf("caller metadata lost: %v", got)
	}
	if req.Metadata[model.MetaPageCountEstimate] != nil {
		t.Errorf("caller metadata map must not be mutated")
	}
}

func TestGetStatus_ServesFromCache(t *testing.T) {
	c := newMemCache()
	cached := StatusResponse{DocumentID: "doc-1", Status: model.DocumentProcessing, Progress: 30}
	body, _ := json.Marshal(cached)
	c.data[cache.StatusKey("doc-1")] = body

	// nil db: a cache hit must not touch the store
	dc := &documentController{cache: c}

	resp, err := dc.GetStatus(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if resp.Status != model.DocumentProcessing || resp.Progress != 30 {
		t.Errorf("unexpected cached response: %+v", resp)
	}
}

func TestGetStatus_CacheMissFillsCache(t *testing.T) {
	c := newMemCache()
	db := &stubDB{
		doc: &model.Document{ID: "doc-1", Status: model.DocumentProcessing},
		events: []*model.StatusEvent{
			{DocumentID: "doc-1", Status: "processing", Progress: 10},
			{DocumentID: "doc-1", Status: "processing", Progress: 70},
		},
	}
	dc := &documentController{db: db, cache: c, statusTTL: time.Second}

	resp, err := dc.GetStatus(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if resp.Progress != 70 {
		t.Errorf("expected latest event progress 70, got %d", resp.Progress)
	}
	if c.sets != 1 {
		t.Errorf("expected the response to be cached, got %d sets", c.sets)
	}
}

func TestGetStatus_TerminalStatusPinsProgress(t *testing.T) {
	c := newMemCache()
	db := &stubDB{
		doc: &model.Document{ID: "doc-1", Status: model.DocumentError, ProcessingError: "extraction failed"},
	}
	dc := &documentController{db: db, cache: c, statusTTL: time.Second}

	resp, err := dc.GetStatus(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if resp.Progress != 100 {
		t.Errorf("terminal status must report progress 100, got %d", resp.Progress)
	}
	if resp.Error != "extraction failed" {
		t.Errorf("expected surfaced processing error, got %q", resp.Error)
	}
}
