package extraction

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"paperwing/internal/config"
)

func newTestClient(handler http.Handler) (Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient(config.ExtractionConfig{
		BaseURL:        server.URL,
		APIKey:         "test-key",
		ProcessorRef:   "processors/test",
		TimeoutSeconds: 5,
	})
	return client, server
}

func TestExtractSync_CapacityErrorIsTyped(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		_, _ = w.Write([]byte(`{"error": {"code": "PAYLOAD_TOO_LARGE", "message": "document exceeds sync page limit"}}`))
	}))
	defer server.Close()

	_, err := client.ExtractSync(context.Background(), []byte("pdf bytes"), "application/pdf")
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if IsRetryable(err) {
		t.Fatal("capacity signal must not be classified retryable")
	}
}

func TestExtractSync_ParsesCanonicalDocument(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing auth header")
		}
		_, _ = w.Write([]byte(`{"document": {"text": "hello world", "pages": [{"page_number": 1, "paragraphs": ["hello world"]}]}}`))
	}))
	defer server.Close()

	doc, err := client.ExtractSync(context.Background(), []byte("pdf bytes"), "application/pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Text != "hello world" {
		t.Errorf("unexpected text: %q", doc.Text)
	}
	if len(doc.Pages) != 1 || doc.Pages[0].PageNumber != 1 {
		t.Errorf("unexpected pages: %+v", doc.Pages)
	}
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		code      string
		retryable bool
	}{
		{"rate limited", 429, "RATE_LIMITED", true},
		{"server error", 503, "INTERNAL", true},
		{"bad request", 400, "INVALID_ARGUMENT", false},
		{"unauthorized", 401, "UNAUTHENTICATED", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error": {"code": "` + tc.code + `", "message": "nope"}}`))
			}))
			defer server.Close()

			_, err := client.ExtractSync(context.Background(), []byte("x"), "application/pdf")
			if err == nil {
				t.Fatal("expected error")
			}

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if got := IsRetryable(err); got != tc.retryable {
				t.Errorf("IsRetryable = %v, want %v", got, tc.retryable)
			}
		})
	}
}

func TestBatchLifecycle(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/extract:batch":
			_, _ = w.Write([]byte(`{"operation_id": "op-123"}`))
		case "/v1/operations/op-123":
			_, _ = w.Write([]byte(`{"state": "RUNNING"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	opID, err := client.StartBatch(context.Background(), "staging/job-1/input/", "staging/job-1/output/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opID != "op-123" {
		t.Fatalf("unexpected operation id: %s", opID)
	}

	status, err := client.GetOperation(context.Background(), opID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.State != OperationRunning {
		t.Fatalf("unexpected state: %s", status.State)
	}
}
