package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"paperwing/internal/config"
	"paperwing/internal/model"

	"github.com/rs/zerolog/log"
)

// Operation states reported by the batch status endpoint
const (
	OperationRunning   = "RUNNING"
	OperationSucceeded = "SUCCEEDED"
	OperationFailed    = "FAILED"
)

// OperationStatus is the state of one long-running batch extraction operation
type OperationStatus struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// Client is the facade over the external document extraction service. The
// sync call returns a canonical document in-line; the batch calls drive a
// staged, polled operation whose results are written to object storage
// out-of-band.
type Client interface {
	// ExtractSync extracts a document in a single in-line call. Returns
	// ErrCapacityExceeded when the input exceeds synchronous limits.
	ExtractSync(ctx context.Context, rawBytes []byte, mimeType string) (*model.ExtractedDocument, error)

	// StartBatch starts an asynchronous extraction over staged input,
	// returning an opaque operation id.
	StartBatch(ctx context.Context, inputPrefix, outputPrefix string) (string, error)

	// GetOperation polls a batch operation's status
	GetOperation(ctx context.Context, operationID string) (*OperationStatus, error)
}

type client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	processorRef string
}

// NewClient creates an extraction service client
func NewClient(cfg config.ExtractionConfig) Client {
	log.Info().
		Str("base_url", cfg.BaseURL).
		Str("processor_ref", cfg.ProcessorRef).
		Int("timeout_seconds", cfg.TimeoutSeconds).
		Msg("Initializing extraction service client")

	return &client{
		httpClient:   &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		processorRef: cfg.ProcessorRef,
	}
}

type syncRequest struct {
	ProcessorRef string `json:"processor_ref"`
	RawBytes     string `json:"raw_bytes"`
	MimeType     string `json:"mime_type"`
}

type batchRequest struct {
	ProcessorRef string `json:"processor_ref"`
	InputPrefix  string `json:"input_prefix"`
	OutputPrefix string `json:"output_prefix"`
}

type batchResponse struct {
	OperationID string `json:"operation_id"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ExtractSync extracts a document in a single in-line call
func (c *client) ExtractSync(ctx context.Context, rawBytes []byte, mimeType string) (*model.ExtractedDocument, error) {
	start := time.Now()

	body, err := c.post(ctx, "/v1/extract", syncRequest{
		ProcessorRef: c.processorRef,
		RawBytes:     base64.StdEncoding.EncodeToString(rawBytes),
		MimeType:     mimeType,
	})
	if err != nil {
		return nil, err
	}

	doc, err := ParseShard(body)
	if err != nil {
		return nil, fmt.Errorf("parsing sync extraction response: %w", err)
	}

	log.Debug().
		Int("input_size", len(rawBytes)).
		Int("pages", len(doc.Pages)).
		Dur("duration", time.Since(start)).
		Msg("Synchronous extraction completed")

	return doc, nil
}

// StartBatch starts an asynchronous extraction over staged input
func (c *client) StartBatch(ctx context.Context, inputPrefix, outputPrefix string) (string, error) {
	body, err := c.post(ctx, "/v1/extract:batch", batchRequest{
		ProcessorRef: c.processorRef,
		InputPrefix:  inputPrefix,
		OutputPrefix: outputPrefix,
	})
	if err != nil {
		return "", err
	}

	var resp batchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parsing batch start response: %w", err)
	}

	if resp.OperationID == "" {
		return "", fmt.Errorf("batch start response missing operation id")
	}

	log.Info().
		Str("operationID", resp.OperationID).
		Str("input_prefix", inputPrefix).
		Msg("Started batch extraction operation")

	return resp.OperationID, nil
}

// GetOperation polls a batch operation's status
func (c *client) GetOperation(ctx context.Context, operationID string) (*OperationStatus, error) {
	url := fmt.Sprintf("%s/v1/operations/%s", c.baseURL, operationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error polling operation: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading operation response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.decodeError(resp.StatusCode, body)
	}

	var status OperationStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("parsing operation status: %w", err)
	}

	log.Debug().
		Str("operationID", operationID).
		Str("state", status.State).
		Msg("Polled batch operation")

	return &status, nil
}

// post sends a JSON request and returns the raw response body on 2xx
func (c *client) post(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error encoding request: %w", err)
	}

	url := c.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("url", url).Msg("Extraction service request failed")
		return nil, fmt.Errorf("error executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.decodeError(resp.StatusCode, body)
	}

	return body, nil
}

// decodeError maps an error envelope onto a typed error, surfacing the
// capacity signal distinctly from ordinary failures
func (c *client) decodeError(statusCode int, body []byte) error {
	var envelope errorEnvelope
	_ = json.Unmarshal(body, &envelope)

	if envelope.Error.Code == CodeCapacityExceeded {
		log.Info().Msg("Extraction service reported input over synchronous capacity")
		return fmt.Errorf("%s: %w", envelope.Error.Message, ErrCapacityExceeded)
	}

	apiErr := &APIError{
		StatusCode: statusCode,
		Code:       envelope.Error.Code,
		Message:    envelope.Error.Message,
	}

	log.Warn().
		Int("status", statusCode).
		Str("code", apiErr.Code).
		Str("message", apiErr.Message).
		Msg("Extraction service returned an error")

	return apiErr
}
