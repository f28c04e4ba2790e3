package embedding

import (
	"context"
	"errors"
	"fmt"

	"paperwing/internal/config"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

// Client generates vector embeddings for text
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type openAIClient struct {
	client *openai.Client
	model  string
}

// NewClient creates an OpenAI-backed embedding client
func NewClient(cfg config.EmbeddingConfig) Client {
	log.Info().Str("model", cfg.Model).Msg("Initializing embedding client")

	return &openAIClient{
		client: openai.NewClient(cfg.APIKey),
		model:  cfg.Model,
	}
}

// Embed generates an embedding for a single text
func (c *openAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}

	return resp.Data[0].Embedding, nil
}

// IsRetryable classifies an embedding error for the retry executor. Rate
// limits and server-side failures are transient; everything else from the
// API is permanent for the attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}

	// Transport failures (timeouts, resets) never come back typed
	return true
}
