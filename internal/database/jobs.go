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

// JobDatabase defines job-related database operations
type JobDatabase interface {
	// Create a new job
	CreateJob(ctx context.Context, job *model.Job) error

	// Get a job by ID
	GetJobByID(ctx context.Context, id string) (*model.Job, error)

	// Atomically claim the next eligible job, or return nil when none exists
	ClaimNextJob(ctx context.Context) (*model.Job, error)

	// Record the processing method chosen for a job
	SetJobMethod(ctx context.Context, id string, method model.ProcessingMethod) error

	// Record a started batch operation on a job
	SetJobBatchOperation(ctx context.Context, id string, operationID string, startedAt time.Time) error

	// Return a job to the queue for another attempt
	RequeueJob(ctx context.Context, id string, errorMessage string) error

	// Mark a job completed
	CompleteJob(ctx context.Context, id string) error

	// Mark a job permanently failed
	FailJob(ctx context.Context, id string, errorMessage string) error

	// List jobs by status
	ListJobsByStatus(ctx context.Context, status model.JobStatus, limit, offset int) ([]*model.Job, error)
}

// CreateJob creates a new job in the database
func (m *mongoDB) CreateJob(ctx context.Context, job *model.Job) error {
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := m.jobsCol.InsertOne(ctx, job)
	if err != nil {
		log.Error().Err(err).Str("jobID", job.ID).Msg("Failed to create job")
		return err
	}

	log.Debug().Str("jobID", job.ID).Str("documentID", job.DocumentID).Msg("Created new job")
	return nil
}

// GetJobByID retrieves a job by its ID
func (m *mongoDB) GetJobByID(ctx context.Context, id string) (*model.Job, error) {
	var job model.Job
	err := m.jobsCol.FindOne(ctx, bson.M{"_id": id}).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Str("jobID", id).Msg("Failed to get job")
		return nil, err
	}

	return &job, nil
}

// ClaimNextJob atomically claims the highest-priority, oldest eligible job.
// Eligible means queued, or mid-batch processing whose claim lease has
// lapsed. A job being sync-extracted by another invocation is in processing
// with a fresh updated_at, so it is never handed out twice; a batch job is
// re-claimed for polling once its lease expires (it sits idle between
// polls), without an attempts increment since re-polling is not a new
// attempt. The claim is a single conditional update so two overlapping
// invocations can never both advance the same job. Returns nil when no
// eligible job exists.
func (m *mongoDB) ClaimNextJob(ctx context.Context) (*model.Job, error) {
	leaseCutoff := time.Now().Add(-m.claimLease)
	filter := bson.M{"$or": bson.A{
		bson.M{"status": model.JobQueued},
		bson.M{
			"status":            model.JobProcessing,
			"processing_method": model.MethodBatch,
			"updated_at":        bson.M{"$lt": leaseCutoff},
		},
	}}

	// Pipeline update: the attempts increment depends on the current status,
	// and both the test and the write must happen in one atomic operation.
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"attempts": bson.M{
				"$cond": bson.A{
					bson.M{"$eq": bson.A{"$status", string(model.JobQueued)}},
					bson.M{"$add": bson.A{"$attempts", 1}},
					"$attempts",
				},
			},
			"status":     string(model.JobProcessing),
			"updated_at": "$$NOW",
		}}},
	}

	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "priority", Value: -1}, {Key: "created_at", Value: 1}}).
		SetReturnDocument(options.After)

	var job model.Job
	err := m.jobsCol.FindOneAndUpdate(ctx, filter, update, opts).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		log.Error().Err(err).Msg("Failed to claim job")
		return nil, err
	}

	log.Debug().
		Str("jobID", job.ID).
		Str("documentID", job.DocumentID).
		Int("attempts", job.Attempts).
		Str("method", string(job.ProcessingMethod)).
		Msg("Claimed job")

	return &job, nil
}

// SetJobMethod records the processing method chosen for a job
func (m *mongoDB) SetJobMethod(ctx context.Context, id string, method model.ProcessingMethod) error {
	update := bson.M{
		"$set": bson.M{
			"processing_method": method,
			"updated_at":        time.Now(),
		},
	}

	result, err := m.jobsCol.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		log.Error().Err(err).Str("jobID", id).Str("method", string(method)).Msg("Failed to set job method")
		return err
	}

	if result.MatchedCount == 0 {
		return ErrNotFound
	}

	log.Debug().Str("jobID", id).Str("method", string(method)).Msg("Set job processing method")
	return nil
}

// SetJobBatchOperation records a started batch operation on a job
func (m *mongoDB) SetJobBatchOperation(ctx context.Context, id string, operationID string, startedAt time.Time) error {
	update := bson.M{
		"$set": bson.M{
			"batch_operation_id": operationID,
			"batch_started_at":   startedAt,
			"updated_at":         time.Now(),
		},
	}

	result, err := m.jobsCol.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		log.Error().Err(err).Str("jobID", id).Str("operationID", operationID).Msg("Failed to set batch operation")
		return err
	}

	if result.MatchedCount == 0 {
		return ErrNotFound
	}

	log.Debug().Str("jobID", id).Str("operationID", operationID).Msg("Recorded batch operation")
	return nil
}

// RequeueJob returns a job to the queue for another attempt. The processing
// method is deliberately preserved, so a document that already switched to
// the batch path stays on it across retries, but any in-flight batch
// operation is cleared so the next attempt starts a fresh one.
func (m *mongoDB) RequeueJob(ctx context.Context, id string, errorMessage string) error {
	update := bson.M{
		"$set": bson.M{
			"status":        model.JobQueued,
			"error_message": errorMessage,
			"updated_at":    time.Now(),
		},
		"$unset": bson.M{
			"completed_at":       "",
			"batch_operation_id": "",
			"batch_started_at":   "",
		},
	}

	result, err := m.jobsCol.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		log.Error().Err(err).Str("jobID", id).Msg("Failed to requeue job")
		return err
	}

	if result.MatchedCount == 0 {
		return ErrNotFound
	}

	log.Debug().Str("jobID", id).Str("error", errorMessage).Msg("Requeued job")
	return nil
}

// CompleteJob marks a job completed
func (m *mongoDB) CompleteJob(ctx context.Context, id string) error {
	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"status":       model.JobCompleted,
			"completed_at": now,
			"updated_at":   now,
		},
	}

	result, err := m.jobsCol.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		log.Error().Err(err).Str("jobID", id).Msg("Failed to complete job")
		return err
	}

	if result.MatchedCount == 0 {
		return ErrNotFound
	}

	log.Debug().Str("jobID", id).Msg("Completed job")
	return nil
}

// FailJob marks a job permanently failed
func (m *mongoDB) FailJob(ctx context.Context, id string, errorMessage string) error {
	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"status":        model.JobFailed,
			"error_message": errorMessage,
			"completed_at":  now,
			"updated_at":    now,
		},
	}

	result, err := m.jobsCol.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		log.Error().Err(err).Str("jobID", id).Msg("Failed to fail job")
		return err
	}

	if result.MatchedCount == 0 {
		return ErrNotFound
	}

	log.Debug().Str("jobID", id).Str("error", errorMessage).Msg("Marked job failed")
	return nil
}

// ListJobsByStatus retrieves jobs by their status
func (m *mongoDB) ListJobsByStatus(ctx context.Context, status model.JobStatus, limit, offset int) ([]*model.Job, error) {
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(int64(offset)).
		SetSort(bson.M{"created_at": -1})

	cursor, err := m.jobsCol.Find(ctx, bson.M{"status": status}, opts)
	if err != nil {
		log.Error().Err(err).Str("status", string(status)).Msg("Failed to list jobs by status")
		return nil, err
	}
	defer cursor.Close(ctx)

	var jobs []*model.Job
	if err := cursor.All(ctx, &jobs); err != nil {
		log.Error().Err(err).Msg("Failed to decode jobs")
		return nil, err
	}

	return jobs, nil
}
