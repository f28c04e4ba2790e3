package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"

	"paperwing/internal/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
)

// Index stores chunk embeddings for similarity search
type Index interface {
	// Upsert writes one chunk embedding with its metadata, keyed by chunk id
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]interface{}) error

	// DeleteByDocument removes every chunk belonging to a document
	DeleteByDocument(ctx context.Context, documentID string) error

	Health(ctx context.Context) error
	Close()
}

type pgIndex struct {
	pool  *pgxpool.Pool
	table string
}

// New connects to the pgvector-backed index and ensures its schema
func New(ctx context.Context, cfg config.VectorIndexConfig) (Index, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to vector index: %w", err)
	}

	table := cfg.Table
	if table == "" {
		table = "document_chunks"
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = 1536
	}

	idx := &pgIndex{pool: pool, table: table}
	if err := idx.ensureSchema(ctx, dimensions); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().Str("table", table).Int("dimensions", dimensions).Msg("Vector index initialized")
	return idx, nil
}

func (i *pgIndex) ensureSchema(ctx context.Context, dimensions int) error {
	if _, err := i.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("creating vector extension: %w", err)
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		embedding vector(%d) NOT NULL,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, i.table, dimensions)
	if _, err := i.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("creating chunk table: %w", err)
	}

	indexDDL := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_document_id_idx ON %s (document_id)`, i.table, i.table)
	if _, err := i.pool.Exec(ctx, indexDDL); err != nil {
		return fmt.Errorf("creating document id index: %w", err)
	}

	return nil
}

// Upsert writes one chunk embedding, replacing any previous vector for the
// same chunk id so re-processing a document is idempotent
func (i *pgIndex) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]interface{}) error {
	documentID, _ := metadata["document_id"].(string)

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encoding chunk metadata: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, document_id, embedding, metadata)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`, i.table)

	_, err = i.pool.Exec(ctx, query, id, documentID, pgvector.NewVector(vector), metaJSON)
	if err != nil {
		log.Error().Err(err).Str("chunkID", id).Msg("Failed to upsert chunk embedding")
		return err
	}

	return nil
}

// DeleteByDocument removes every chunk belonging to a document
func (i *pgIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, i.table)

	tag, err := i.pool.Exec(ctx, query, documentID)
	if err != nil {
		log.Error().Err(err).Str("documentID", documentID).Msg("Failed to delete document chunks")
		return err
	}

	log.Debug().Str("documentID", documentID).Int64("deleted", tag.RowsAffected()).Msg("Deleted document chunks")
	return nil
}

func (i *pgIndex) Health(ctx context.Context) error {
	return i.pool.Ping(ctx)
}

func (i *pgIndex) Close() {
	i.pool.Close()
}
