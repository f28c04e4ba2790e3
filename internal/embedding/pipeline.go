package embedding

import (
	"context"
	"fmt"
	"time"

	"paperwing/internal/model"
	"paperwing/internal/resilience"
	"paperwing/internal/vectorindex"

	"github.com/rs/zerolog/log"
)

// Pipeline chunks extracted text, embeds each chunk, and upserts the vectors
// into the index. It is a downstream consumer of extraction results; it never
// decides job outcomes. A returned error means embeddings are missing or
// incomplete for the document; the caller treats that as degraded success,
// not failure.
type Pipeline struct {
	chunker      *Chunker
	embedder     Client
	index        vectorindex.Index
	embedBreaker *resilience.CircuitBreaker
	indexBreaker *resilience.CircuitBreaker
	retryPolicy  resilience.RetryPolicy
}

// NewPipeline creates the embedding pipeline with its dependency breakers
func NewPipeline(
	chunker *Chunker,
	embedder Client,
	index vectorindex.Index,
	embedBreaker *resilience.CircuitBreaker,
	indexBreaker *resilience.CircuitBreaker,
	retryPolicy resilience.RetryPolicy,
) *Pipeline {
	return &Pipeline{
		chunker:      chunker,
		embedder:     embedder,
		index:        index,
		embedBreaker: embedBreaker,
		indexBreaker: indexBreaker,
		retryPolicy:  retryPolicy,
	}
}

// Process embeds and indexes every chunk of the extracted document. Chunk
// ids are deterministic, so re-running after a partial failure overwrites
// rather than duplicates.
func (p *Pipeline) Process(ctx context.Context, doc *model.Document, extracted *model.ExtractedDocument) error {
	start := time.Now()

	chunks := p.chunker.Chunk(extracted)
	if len(chunks) == 0 {
		log.Info().Str("documentID", doc.ID).Msg("No text to embed")
		return nil
	}

	// A reprocessed document may chunk differently; drop the old set so no
	// stale tail chunks survive under ids past the new count.
	if err := p.index.DeleteByDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("clearing previous chunks: %w", err)
	}

	for _, chunk := range chunks {
		vector, err := p.embedChunk(ctx, chunk)
		if err != nil {
			return fmt.Errorf("embedding chunk %d: %w", chunk.Index, err)
		}

		if err := p.indexChunk(ctx, doc, chunk, vector); err != nil {
			return fmt.Errorf("indexing chunk %d: %w", chunk.Index, err)
		}
	}

	log.Info().
		Str("documentID", doc.ID).
		Int("chunks", len(chunks)).
		Dur("duration", time.Since(start)).
		Msg("Embedded and indexed document")

	return nil
}

func (p *Pipeline) embedChunk(ctx context.Context, chunk Chunk) ([]float32, error) {
	var vector []float32

	policy := p.retryPolicy
	policy.IsRetryable = IsRetryable

	err := p.embedBreaker.Execute(func() error {
		result := resilience.Retry(ctx, policy, func(ctx context.Context) error {
			var embedErr error
			vector, embedErr = p.embedder.Embed(ctx, chunk.Text)
			return embedErr
		})
		return result.Err
	})

	return vector, err
}

func (p *Pipeline) indexChunk(ctx context.Context, doc *model.Document, chunk Chunk, vector []float32) error {
	metadata := map[string]interface{}{
		"document_id": doc.ID,
		"chunk_index": chunk.Index,
		"page":        chunk.Page,
		"filename":    doc.Filename,
		"text":        chunk.Text,
	}
	// Business metadata on the document rides along with every chunk
	for k, v := range doc.Metadata {
		if _, reserved := metadata[k]; !reserved {
			metadata[k] = v
		}
	}

	chunkID := fmt.Sprintf("%s-%d", doc.ID, chunk.Index)

	return p.indexBreaker.Execute(func() error {
		result := resilience.Retry(ctx, p.retryPolicy, func(ctx context.Context) error {
			return p.index.Upsert(ctx, chunkID, vector, metadata)
		})
		return result.Err
	})
}
