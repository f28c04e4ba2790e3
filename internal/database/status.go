package database

import (
	"context"
	"time"

	"paperwing/internal/model"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// StatusDatabase defines operations on the append-only processing status log
type StatusDatabase interface {
	// Append a progress event for a document
	AppendStatusEvent(ctx context.Context, event *model.StatusEvent) error

	// List a document's events, oldest first
	ListStatusEvents(ctx context.Context, documentID string, limit int) ([]*model.StatusEvent, error)
}

// AppendStatusEvent appends a progress event for a document
func (m *mongoDB) AppendStatusEvent(ctx context.Context, event *model.StatusEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	_, err := m.statusCol.InsertOne(ctx, event)
	if err != nil {
		log.Error().Err(err).Str("documentID", event.DocumentID).Str("status", event.Status).Msg("Failed to append status event")
		return err
	}

	log.Debug().
		Str("documentID", event.DocumentID).
		Str("status", event.Status).
		Int("progress", event.Progress).
		Msg("Appended status event")

	return nil
}

// ListStatusEvents retrieves a document's events, oldest first
func (m *mongoDB) ListStatusEvents(ctx context.Context, documentID string, limit int) ([]*model.StatusEvent, error) {
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSort(bson.M{"created_at": 1})

	cursor, err := m.statusCol.Find(ctx, bson.M{"document_id": documentID}, opts)
	if err != nil {
		log.Error().Err(err).Str("documentID", documentID).Msg("Failed to list status events")
		return nil, err
	}
	defer cursor.Close(ctx)

	var events []*model.StatusEvent
	if err := cursor.All(ctx, &events); err != nil {
		log.Error().Err(err).Msg("Failed to decode status events")
		return nil, err
	}

	return events, nil
}
