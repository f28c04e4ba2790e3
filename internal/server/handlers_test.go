package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"paperwing/internal/config"
	"paperwing/internal/controller"
	"paperwing/internal/model"
	"paperwing/internal/orchestrator"

	"github.com/gin-gonic/gin"
)

type stubDocuments struct {
	controller.DocumentController
	status *controller.StatusResponse
	err    error
}

func (s *stubDocuments) GetStatus(ctx context.Context, id string) (*controller.StatusResponse, error) {
	return s.status, s.err
}

type stubTicker struct {
	result *orchestrator.TickResult
	err    error
	calls  int
}

func (s *stubTicker) RunTick(ctx context.Context) (*orchestrator.TickResult, error) {
	s.calls++
	return s.result, s.err
}

func newTestServer(orch Ticker, dc controller.DocumentController) *Server {
	gin.SetMode(gin.TestMode)
	return &Server{
		dc:   dc,
		orch: orch,
		config: config.Config{
			Trigger: config.TriggerConfig{Secret: "tick-secret"},
			CORS:    config.CORSConfig{AllowedOrigins: []string{"*"}},
		},
	}
}

func TestTriggerMiddleware_RejectsMissingSecret(t *testing.T) {
	ticker := &stubTicker{result: &orchestrator.TickResult{Outcome: orchestrator.OutcomeNoOp}}
	s := newTestServer(ticker, &stubDocuments{})

	req := httptest.NewRequest(http.MethodPost, "/internal/process-jobs", nil)
	w := httptest.NewRecorder()
	s.RegisterRoutes().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if ticker.calls != 0 {
		t.Fatalf("tick ran despite rejected request")
	}
}

func TestTriggerMiddleware_RejectsWrongSecret(t *testing.T) {
	s := newTestServer(&stubTicker{}, &stubDocuments{})

	req := httptest.NewRequest(http.MethodPost, "/internal/process-jobs", nil)
	req.Header.Set("X-Trigger-Secret", "guessed")
	w := httptest.NewRecorder()
	s.RegisterRoutes().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestProcessJobs_ReturnsTickResult(t *testing.T) {
	ticker := &stubTicker{result: &orchestrator.TickResult{
		Outcome:    orchestrator.OutcomeCompleted,
		JobID:      "job-1",
		DocumentID: "doc-1",
	}}
	s := newTestServer(ticker, &stubDocuments{})

	req := httptest.NewRequest(http.MethodPost, "/internal/process-jobs", nil)
	req.Header.Set("X-Trigger-Secret", "tick-secret")
	w := httptest.NewRecorder()
	s.RegisterRoutes().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var result orchestrator.TickResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if result.Outcome != orchestrator.OutcomeCompleted || result.JobID != "job-1" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestProcessJobs_PermanentFailureIsNon2xx(t *testing.T) {
	ticker := &stubTicker{result: &orchestrator.TickResult{
		Outcome: orchestrator.OutcomeFailed,
		JobID:   "job-1",
		Detail:  "attempts exhausted",
	}}
	s := newTestServer(ticker, &stubDocuments{})

	req := httptest.NewRequest(http.MethodPost, "/internal/process-jobs", nil)
	req.Header.Set("X-Trigger-Secret", "tick-secret")
	w := httptest.NewRecorder()
	s.RegisterRoutes().ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for a permanently failed job, got %d", w.Code)
	}
}

func TestDocumentStatus_ReturnsCachedView(t *testing.T) {
	dc := &stubDocuments{status: &controller.StatusResponse{
		DocumentID: "doc-1",
		Status:     model.DocumentProcessing,
		Progress:   30,
	}}
	s := newTestServer(&stubTicker{}, dc)

	req := httptest.NewRequest(http.MethodGet, "/documents/doc-1/status", nil)
	w := httptest.NewRecorder()
	s.RegisterRoutes().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"progress":30`) {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestUploadDocument_RequiresFileField(t *testing.T) {
	s := newTestServer(&stubTicker{}, &stubDocuments{})

	req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.RegisterRoutes().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
