package embedding

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"paperwing/internal/model"
	"paperwing/internal/resilience"
)

type fakeEmbedder struct {
	calls    int
	failures int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("embedding service unavailable")
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeIndex struct {
	upserts map[string]map[string]interface{}
	deletes []string
	err     error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{upserts: make(map[string]map[string]interface{})}
}

func (f *fakeIndex) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.upserts[id] = metadata
	return nil
}

func (f *fakeIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	f.deletes = append(f.deletes, documentID)
	return nil
}
func (f *fakeIndex) Health(ctx context.Context) error                             { return nil }
func (f *fakeIndex) Close()                                                       {}

func testPipeline(embedder Client, index *fakeIndex) *Pipeline {
	policy := resilience.RetryPolicy{
		MaxAttempts:   3,
		BaseDelay:     time.Millisecond,
		MaxDelay:      time.Millisecond,
		BackoffFactor: 1,
	}

	return NewPipeline(
		NewChunker(200, 20),
		embedder,
		index,
		resilience.NewCircuitBreaker("embedding", 5, time.Minute),
		resilience.NewCircuitBreaker("vector-index", 5, time.Minute),
		policy,
	)
}

func testDocument() *model.Document {
	return &model.Document{
		ID:       "doc-1",
		Filename: "report.pdf",
		Metadata: map[string]interface{}{"department": "finance"},
	}
}

func TestProcess_IndexesEveryChunkWithMetadata(t *testing.T) {
	index := newFakeIndex()
	pipeline := testPipeline(&fakeEmbedder{}, index)

	extracted := &model.ExtractedDocument{
		Text: strings.Repeat("An interesting sentence. ", 40),
	}

	if err := pipeline.Process(context.Background(), testDocument(), extracted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(index.upserts) < 2 {
		t.Fatalf("expected multiple chunks indexed, got %d", len(index.upserts))
	}

	meta, ok := index.upserts["doc-1-0"]
	if !ok {
		t.Fatal("missing deterministic chunk id doc-1-0")
	}
	if meta["document_id"] != "doc-1" {
		t.Errorf("missing document_id metadata: %v", meta)
	}
	if meta["department"] != "finance" {
		t.Errorf("business metadata not carried onto chunk: %v", meta)
	}
	if len(index.deletes) != 1 || index.deletes[0] != "doc-1" {
		t.Errorf("expected previous chunks cleared once, got %v", index.deletes)
	}
}

func TestProcess_RetriesTransientEmbeddingFailures(t *testing.T) {
	embedder := &fakeEmbedder{failures: 2}
	index := newFakeIndex()
	pipeline := testPipeline(embedder, index)

	extracted := &model.ExtractedDocument{Text: "One small document."}

	if err := pipeline.Process(context.Background(), testDocument(), extracted); err != nil {
		t.Fatalf("expected retries to recover, got %v", err)
	}
	if embedder.calls != 3 {
		t.Fatalf("expected 3 embed calls, got %d", embedder.calls)
	}
}

func TestProcess_SurfacesIndexFailure(t *testing.T) {
	index := newFakeIndex()
	index.err = errors.New("index write refused")
	pipeline := testPipeline(&fakeEmbedder{}, index)

	extracted := &model.ExtractedDocument{Text: "One small document."}

	err := pipeline.Process(context.Background(), testDocument(), extracted)
	if err == nil {
		t.Fatal("expected error from index failure")
	}
}

func TestProcess_NoTextIsNotAnError(t *testing.T) {
	index := newFakeIndex()
	pipeline := testPipeline(&fakeEmbedder{}, index)

	if err := pipeline.Process(context.Background(), testDocument(), &model.ExtractedDocument{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(index.upserts) != 0 {
		t.Fatalf("expected no upserts, got %d", len(index.upserts))
	}
}
