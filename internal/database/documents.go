package database

import (
	"context"
	"errors"
	"time"

	"paperwing/internal/model"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// DocumentDatabase defines document-related database operations
type DocumentDatabase interface {
	// Create a new document
	CreateDocument(ctx context.Context, doc *model.Document) error

	// Get a document by ID
	GetDocumentByID(ctx context.Context, id string) (*model.Document, error)

	// Update document status and optionally the processing error
	UpdateDocumentStatus(ctx context.Context, id string, status model.DocumentStatus, processingError string) error

	// Persist extraction output onto the document
	SaveExtractionResult(ctx context.Context, id string, text string, fields map[string]interface{}, pageCount int) error

	// Merge keys into the document's metadata map
	MergeDocumentMetadata(ctx context.Context, id string, meta map[string]interface{}) error

	// List documents, newest first
	ListDocuments(ctx context.Context, limit, offset int) ([]*model.Document, error)
}

// CreateDocument creates a new document record
func (m *mongoDB) CreateDocument(ctx context.Context, doc *model.Document) error {
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	_, err := m.documentsCol.InsertOne(ctx, doc)
	if err != nil {
		log.Error().Err(err).Str("documentID", doc.ID).Msg("Failed to create document")
		return err
	}

	log.Debug().Str("documentID", doc.ID).Str("filename", doc.Filename).Msg("Created new document")
	return nil
}

// GetDocumentByID retrieves a document by its ID
func (m *mongoDB) GetDocumentByID(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	err := m.documentsCol.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Str("documentID", id).Msg("Failed to get document")
		return nil, err
	}

	return &doc, nil
}

// UpdateDocumentStatus updates a document's status and processing error
func (m *mongoDB) UpdateDocumentStatus(ctx context.Context, id string, status model.DocumentStatus, processingError string) error {
	set := bson.M{
		"status":     status,
		"updated_at": time.Now(),
	}
	if processingError != "" {
		set["processing_error"] = processingError
	}

	result, err := m.documentsCol.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		log.Error().Err(err).Str("documentID", id).Str("status", string(status)).Msg("Failed to update document status")
		return err
	}

	if result.MatchedCount == 0 {
		return ErrNotFound
	}

	log.Debug().Str("documentID", id).Str("status", string(status)).Msg("Updated document status")
	return nil
}

// SaveExtractionResult persists extracted text, fields, and page count
func (m *mongoDB) SaveExtractionResult(ctx context.Context, id string, text string, fields map[string]interface{}, pageCount int) error {
	update := bson.M{
		"$set": bson.M{
			"extracted_text":   text,
			"extracted_fields": fields,
			"page_count":       pageCount,
			"updated_at":       time.Now(),
		},
	}

	result, err := m.documentsCol.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		log.Error().Err(err).Str("documentID", id).Msg("Failed to save extraction result")
		return err
	}

	if result.MatchedCount == 0 {
		return ErrNotFound
	}

	log.Debug().Str("documentID", id).Int("pageCount", pageCount).Int("textLength", len(text)).Msg("Saved extraction result")
	return nil
}

// MergeDocumentMetadata merges keys into the document's metadata map
func (m *mongoDB) MergeDocumentMetadata(ctx context.Context, id string, meta map[string]interface{}) error {
	if len(meta) == 0 {
		return nil
	}

	set := bson.M{"updated_at": time.Now()}
	for k, v := range meta {
		set["metadata."+k] = v
	}

	result, err := m.documentsCol.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		log.Error().Err(err).Str("documentID", id).Msg("Failed to merge document metadata")
		return err
	}

	if result.MatchedCount == 0 {
		return ErrNotFound
	}

	return nil
}

// ListDocuments retrieves documents, newest first
func (m *mongoDB) ListDocuments(ctx context.Context, limit, offset int) ([]*model.Document, error) {
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(int64(offset)).
		SetSort(bson.M{"created_at": -1})

	cursor, err := m.documentsCol.Find(ctx, bson.M{}, opts)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list documents")
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []*model.Document
	if err := cursor.All(ctx, &docs); err != nil {
		log.Error().Err(err).Msg("Failed to decode documents")
		return nil, err
	}

	return docs, nil
}
