package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paperwing/internal/blob"
	"paperwing/internal/database"
	"paperwing/internal/extraction"
	"paperwing/internal/model"
	"paperwing/internal/resilience"

	"github.com/rs/zerolog/log"
)

// Outcome is the machine-readable result of one tick
type Outcome string

const (
	OutcomeNoOp      Outcome = "no_op"
	OutcomeAdvanced  Outcome = "advanced"
	OutcomeRequeued  Outcome = "requeued"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// TickResult reports what one invocation did
type TickResult struct {
	Outcome    Outcome         `json:"outcome"`
	JobID      string          `json:"job_id,omitempty"`
	DocumentID string          `json:"document_id,omitempty"`
	JobStatus  model.JobStatus `json:"job_status,omitempty"`
	Detail     string          `json:"detail,omitempty"`
}

// DocumentEmbedder is the downstream embedding pipeline. A returned error
// means embeddings are missing for the document; the orchestrator treats
// that as degraded success, never as job failure.
type DocumentEmbedder interface {
	Process(ctx context.Context, doc *model.Document, extracted *model.ExtractedDocument) error
}

// StatusPublisher fans progress events out to external status consumers.
// Publishing is best-effort; a broker outage must not affect job outcomes.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, event *model.StatusEvent) error
}

// Orchestrator drives the document processing state machine. It is invoked
// on a fixed interval by an external trigger; each invocation claims at most
// one eligible job, advances it by exactly one state transition, and
// returns. All cross-tick state lives in the job store, so invocations may
// overlap or be arbitrarily delayed without losing work.
type Orchestrator struct {
	db        database.Database
	staging   blob.StagingArea
	extractor extraction.Client
	embedder  DocumentEmbedder
	publisher StatusPublisher

	extractionBreaker *resilience.CircuitBreaker
	retryPolicy       resilience.RetryPolicy
	batchMaxAge       time.Duration
}

// New creates the orchestrator
func New(
	db database.Database,
	staging blob.StagingArea,
	extractor extraction.Client,
	embedder DocumentEmbedder,
	publisher StatusPublisher,
	extractionBreaker *resilience.CircuitBreaker,
	retryPolicy resilience.RetryPolicy,
	batchMaxAge time.Duration,
) *Orchestrator {
	return &Orchestrator{
		db:                db,
		staging:           staging,
		extractor:         extractor,
		embedder:          embedder,
		publisher:         publisher,
		extractionBreaker: extractionBreaker,
		retryPolicy:       retryPolicy,
		batchMaxAge:       batchMaxAge,
	}
}

// RunTick advances at most one job by exactly one state transition
func (o *Orchestrator) RunTick(ctx context.Context) (*TickResult, error) {
	job, err := o.db.ClaimNextJob(ctx)
	if err != nil {
		return nil, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		log.Debug().Msg("No eligible job")
		return &TickResult{Outcome: OutcomeNoOp}, nil
	}

	doc, err := o.db.GetDocumentByID(ctx, job.DocumentID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			// Orphaned job; nothing to retry against
			_ = o.db.FailJob(ctx, job.ID, "document record missing")
			return &TickResult{
				Outcome:   OutcomeFailed,
				JobID:     job.ID,
				JobStatus: model.JobFailed,
				Detail:    "document record missing",
			}, nil
		}
		return nil, fmt.Errorf("loading document %s: %w", job.DocumentID, err)
	}

	if doc.Status == model.DocumentQueued || doc.Status == model.DocumentUploading {
		if err := o.db.UpdateDocumentStatus(ctx, doc.ID, model.DocumentProcessing, ""); err != nil {
			return nil, err
		}
		o.emitStatus(ctx, doc.ID, string(model.DocumentProcessing), 10, "processing started", "")
	}

	log.Info().
		Str("jobID", job.ID).
		Str("documentID", doc.ID).
		Str("method", string(job.ProcessingMethod)).
		Int("attempts", job.Attempts).
		Msg("Advancing job")

	if job.ProcessingMethod == model.MethodBatch {
		return o.runBatch(ctx, job, doc)
	}
	return o.runSync(ctx, job, doc)
}

// runSync attempts a single in-line extraction. The method is chosen
// optimistically: every document tries sync first, and the service's own
// capacity signal decides when to reroute to batch.
func (o *Orchestrator) runSync(ctx context.Context, job *model.Job, doc *model.Document) (*TickResult, error) {
	rawBytes, err := o.staging.Download(ctx, doc.StoragePath)
	if err != nil {
		return o.failAttempt(ctx, job, doc, fmt.Errorf("downloading document bytes: %w", err))
	}

	var extracted *model.ExtractedDocument
	capacityExceeded := false

	policy := o.retryPolicy
	policy.IsRetryable = extraction.IsRetryable

	err = o.extractionBreaker.Execute(func() error {
		result := resilience.Retry(ctx, policy, func(ctx context.Context) error {
			var callErr error
			extracted, callErr = o.extractor.ExtractSync(ctx, rawBytes, doc.ContentType)
			return callErr
		})

		// The capacity signal is a routing decision, not a dependency
		// failure: the service answered, so the breaker stays healthy.
		if errors.Is(result.Err, extraction.ErrCapacityExceeded) {
			capacityExceeded = true
			return nil
		}
		return result.Err
	})
	if err != nil {
		return o.failAttempt(ctx, job, doc, err)
	}

	if capacityExceeded {
		if err := o.db.SetJobMethod(ctx, job.ID, model.MethodBatch); err != nil {
			return nil, err
		}
		o.emitStatus(ctx, doc.ID, string(model.DocumentProcessing), 20, "rerouted to batch extraction", "")

		log.Info().Str("jobID", job.ID).Msg("Document exceeds sync capacity, switching to batch path")
		return &TickResult{
			Outcome:    OutcomeAdvanced,
			JobID:      job.ID,
			DocumentID: doc.ID,
			JobStatus:  model.JobProcessing,
			Detail:     "rerouted to batch extraction",
		}, nil
	}

	if job.ProcessingMethod == "" {
		if err := o.db.SetJobMethod(ctx, job.ID, model.MethodSync); err != nil {
			return nil, err
		}
	}

	return o.finalize(ctx, job, doc, extracted)
}

// runBatch advances the asynchronous extraction flow by one step: start the
// operation, or poll it, or collect and merge its results.
func (o *Orchestrator) runBatch(ctx context.Context, job *model.Job, doc *model.Document) (*TickResult, error) {
	if job.BatchOperationID == "" {
		return o.startBatch(ctx, job, doc)
	}

	// A permanently RUNNING operation must not pin the job forever
	if job.BatchStartedAt != nil && o.batchMaxAge > 0 && time.Since(*job.BatchStartedAt) > o.batchMaxAge {
		return o.failAttempt(ctx, job, doc, fmt.Errorf("batch operation %s exceeded deadline of %s", job.BatchOperationID, o.batchMaxAge))
	}

	policy := o.retryPolicy
	policy.IsRetryable = extraction.IsRetryable

	var status *extraction.OperationStatus
	err := o.extractionBreaker.Execute(func() error {
		result := resilience.Retry(ctx, policy, func(ctx context.Context) error {
			var callErr error
			status, callErr = o.extractor.GetOperation(ctx, job.BatchOperationID)
			return callErr
		})
		return result.Err
	})
	if err != nil {
		return o.failAttempt(ctx, job, doc, err)
	}

	switch status.State {
	case extraction.OperationRunning:
		log.Debug().Str("jobID", job.ID).Str("operationID", job.BatchOperationID).Msg("Batch operation still running")
		return &TickResult{
			Outcome:    OutcomeAdvanced,
			JobID:      job.ID,
			DocumentID: doc.ID,
			JobStatus:  model.JobProcessing,
			Detail:     "batch operation running",
		}, nil

	case extraction.OperationSucceeded:
		return o.collectBatch(ctx, job, doc)

	case extraction.OperationFailed:
		return o.failAttempt(ctx, job, doc, fmt.Errorf("batch operation failed: %s", status.Error))

	default:
		return o.failAttempt(ctx, job, doc, fmt.Errorf("batch operation in unknown state %q", status.State))
	}
}

// startBatch stages the document bytes and starts the asynchronous operation
func (o *Orchestrator) startBatch(ctx context.Context, job *model.Job, doc *model.Document) (*TickResult, error) {
	rawBytes, err := o.staging.Download(ctx, doc.StoragePath)
	if err != nil {
		return o.failAttempt(ctx, job, doc, fmt.Errorf("downloading document bytes: %w", err))
	}

	inputPrefix, err := o.staging.Stage(ctx, job.ID, rawBytes, doc.Filename)
	if err != nil {
		return o.failAttempt(ctx, job, doc, fmt.Errorf("staging document: %w", err))
	}

	policy := o.retryPolicy
	policy.IsRetryable = extraction.IsRetryable

	var operationID string
	err = o.extractionBreaker.Execute(func() error {
		result := resilience.Retry(ctx, policy, func(ctx context.Context) error {
			var callErr error
			operationID, callErr = o.extractor.StartBatch(ctx, inputPrefix, o.staging.OutputPrefix(job.ID))
			return callErr
		})
		return result.Err
	})
	if err != nil {
		return o.failAttempt(ctx, job, doc, err)
	}

	if err := o.db.SetJobBatchOperation(ctx, job.ID, operationID, time.Now()); err != nil {
		return nil, err
	}
	o.emitStatus(ctx, doc.ID, string(model.DocumentProcessing), 30, "batch extraction started", "")

	return &TickResult{
		Outcome:    OutcomeAdvanced,
		JobID:      job.ID,
		DocumentID: doc.ID,
		JobStatus:  model.JobProcessing,
		Detail:     "batch operation started",
	}, nil
}

// collectBatch gathers the output shards, merges them, and finalizes
func (o *Orchestrator) collectBatch(ctx context.Context, job *model.Job, doc *model.Document) (*TickResult, error) {
	// Result delivery is out-of-band: the status response carries no
	// payload, success means artifacts exist under the output prefix.
	ready, err := o.staging.OutputReady(ctx, job.ID)
	if err != nil {
		return o.failAttempt(ctx, job, doc, fmt.Errorf("checking batch output: %w", err))
	}
	if !ready {
		log.Debug().Str("jobID", job.ID).Msg("Batch operation succeeded but output not yet visible")
		return &TickResult{
			Outcome:    OutcomeAdvanced,
			JobID:      job.ID,
			DocumentID: doc.ID,
			JobStatus:  model.JobProcessing,
			Detail:     "awaiting batch output artifacts",
		}, nil
	}

	shards, err := o.staging.Collect(ctx, job.ID)
	if err != nil {
		return o.failAttempt(ctx, job, doc, fmt.Errorf("collecting batch output: %w", err))
	}

	raw := make([][]byte, len(shards))
	for i, shard := range shards {
		raw[i] = shard.Data
	}

	merged, err := extraction.Merge(raw)
	if err != nil {
		return o.failAttempt(ctx, job, doc, err)
	}

	result, err := o.finalize(ctx, job, doc, merged)
	if err != nil {
		return result, err
	}

	// Cleanup is best-effort and never affects the job outcome
	o.staging.Cleanup(ctx, job.ID)

	return result, nil
}

// finalize persists extraction output, runs the embedding pipeline, and
// marks the job and document completed. An embedding failure degrades the
// result instead of failing it: the document keeps its searchable text and
// is annotated so the product layer can explain the missing similarity
// search.
func (o *Orchestrator) finalize(ctx context.Context, job *model.Job, doc *model.Document, extracted *model.ExtractedDocument) (*TickResult, error) {
	fields := extracted.FieldMap()
	pageCount := len(extracted.Pages)

	if err := o.db.SaveExtractionResult(ctx, doc.ID, extracted.Text, fields, pageCount); err != nil {
		return nil, err
	}
	doc.ExtractedText = extracted.Text
	doc.ExtractedFields = fields
	doc.PageCount = pageCount

	o.emitStatus(ctx, doc.ID, string(model.DocumentProcessing), 70, "extraction complete", "")

	detail := "document processed"
	if embedErr := o.embedder.Process(ctx, doc, extracted); embedErr != nil {
		log.Warn().
			Err(embedErr).
			Str("documentID", doc.ID).
			Msg("Embedding failed after successful extraction, completing without embeddings")

		meta := map[string]interface{}{
			model.MetaEmbeddingsSkipped: true,
			model.MetaEmbeddingsError:   embedErr.Error(),
		}
		if err := o.db.MergeDocumentMetadata(ctx, doc.ID, meta); err != nil {
			return nil, err
		}
		detail = "document processed without embeddings"
	}

	if err := o.db.UpdateDocumentStatus(ctx, doc.ID, model.DocumentCompleted, ""); err != nil {
		return nil, err
	}
	if err := o.db.CompleteJob(ctx, job.ID); err != nil {
		return nil, err
	}
	o.emitStatus(ctx, doc.ID, string(model.DocumentCompleted), 100, detail, "")

	log.Info().
		Str("jobID", job.ID).
		Str("documentID", doc.ID).
		Int("pageCount", pageCount).
		Msg("Job completed")

	return &TickResult{
		Outcome:    OutcomeCompleted,
		JobID:      job.ID,
		DocumentID: doc.ID,
		JobStatus:  model.JobCompleted,
		Detail:     detail,
	}, nil
}

// failAttempt applies the retry policy to a failed attempt: requeue while
// attempts remain, otherwise fail the job and the document terminally. Only
// this method decides terminal outcomes.
func (o *Orchestrator) failAttempt(ctx context.Context, job *model.Job, doc *model.Document, cause error) (*TickResult, error) {
	if job.Attempts < job.MaxAttempts {
		if err := o.db.RequeueJob(ctx, job.ID, cause.Error()); err != nil {
			return nil, err
		}
		o.emitStatus(ctx, doc.ID, string(model.DocumentProcessing), 0, fmt.Sprintf("attempt %d failed, retrying", job.Attempts), cause.Error())

		log.Warn().
			Err(cause).
			Str("jobID", job.ID).
			Int("attempts", job.Attempts).
			Int("maxAttempts", job.MaxAttempts).
			Msg("Attempt failed, job requeued")

		return &TickResult{
			Outcome:    OutcomeRequeued,
			JobID:      job.ID,
			DocumentID: doc.ID,
			JobStatus:  model.JobQueued,
			Detail:     cause.Error(),
		}, nil
	}

	if err := o.db.FailJob(ctx, job.ID, cause.Error()); err != nil {
		return nil, err
	}
	if err := o.db.UpdateDocumentStatus(ctx, doc.ID, model.DocumentError, cause.Error()); err != nil {
		return nil, err
	}
	o.emitStatus(ctx, doc.ID, string(model.DocumentError), 100, "processing failed permanently", cause.Error())

	log.Error().
		Err(cause).
		Str("jobID", job.ID).
		Int("attempts", job.Attempts).
		Msg("Job failed permanently")

	return &TickResult{
		Outcome:    OutcomeFailed,
		JobID:      job.ID,
		DocumentID: doc.ID,
		JobStatus:  model.JobFailed,
		Detail:     cause.Error(),
	}, nil
}

// emitStatus appends a progress event and fans it out. Both writes are
// advisory: failures are logged, never escalated.
func (o *Orchestrator) emitStatus(ctx context.Context, documentID, status string, progress int, message, errMsg string) {
	event := &model.StatusEvent{
		DocumentID: documentID,
		Status:     status,
		Progress:   progress,
		Message:    message,
		Error:      errMsg,
		CreatedAt:  time.Now(),
	}

	if err := o.db.AppendStatusEvent(ctx, event); err != nil {
		log.Warn().Err(err).Str("documentID", documentID).Msg("Failed to append status event")
	}

	if o.publisher != nil {
		if err := o.publisher.PublishStatus(ctx, event); err != nil {
			log.Warn().Err(err).Str("documentID", documentID).Msg("Failed to publish status event")
		}
	}
}
