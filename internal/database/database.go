package database

import (
	"context"
	"time"

	"paperwing/internal/config"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Database interface {
	Health() error
	DocumentDatabase
	JobDatabase
	StatusDatabase
}

type mongoDB struct {
	client *mongo.Client
	db     *mongo.Database

	documentsCol *mongo.Collection
	jobsCol      *mongo.Collection
	statusCol    *mongo.Collection

	claimLease time.Duration
}

func New(config *config.Config) (Database, error) {
	clientOptions := options.Client().ApplyURI(config.MongoDB.URI)
	if config.MongoDB.Username != "" {
		clientOptions.SetAuth(options.Credential{
			Username: config.MongoDB.Username,
			Password: config.MongoDB.Password,
		})
	}

	client, err := mongo.Connect(context.TODO(), clientOptions)
	if err != nil {
		return nil, err
	}

	db := client.Database(config.MongoDB.DB)

	documentsCol := db.Collection("documents")
	documentIndexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "status", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index(),
		},
	}

	jobsCol := db.Collection("document_jobs")
	jobIndexModels := []mongo.IndexModel{
		{
			// Claim order: eligible jobs by priority then age
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "priority", Value: -1}, {Key: "created_at", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "document_id", Value: 1}},
			Options: options.Index(),
		},
		{
			// TTL index to auto-delete old terminal jobs
			Keys:    bson.D{{Key: "completed_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(60 * 60 * 24 * 30),
		},
	}

	statusCol := db.Collection("processing_status")
	statusIndexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "document_id", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index(),
		},
	}

	_, err = documentsCol.Indexes().CreateMany(context.Background(), documentIndexModels)
	if err != nil {
		log.Warn().Err(err).Str("Collection", "Documents").Msg("Error creating indexes")
	}

	_, err = jobsCol.Indexes().CreateMany(context.Background(), jobIndexModels)
	if err != nil {
		log.Warn().Err(err).Str("Collection", "DocumentJobs").Msg("Error creating indexes")
	}

	_, err = statusCol.Indexes().CreateMany(context.Background(), statusIndexModels)
	if err != nil {
		log.Warn().Err(err).Str("Collection", "ProcessingStatus").Msg("Error creating indexes")
	}

	return &mongoDB{
		client:       client,
		db:           db,
		documentsCol: documentsCol,
		jobsCol:      jobsCol,
		statusCol:    statusCol,
		claimLease:   time.Duration(config.Pipeline.ClaimLeaseSeconds) * time.Second,
	}, nil
}

// Health implements Database interface
func (m *mongoDB) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	err := m.client.Ping(ctx, nil)
	if err != nil {
		log.Error().Msgf("Database health error: %v", err)
		return err
	}

	return nil
}
