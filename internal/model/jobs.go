package model

import "time"

// JobStatus represents the current state of a processing job
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// ProcessingMethod is how a document is extracted: a single in-line call,
// or an asynchronous staged operation polled across ticks. Empty until the
// first tick decides.
type ProcessingMethod string

const (
	MethodSync  ProcessingMethod = "sync"
	MethodBatch ProcessingMethod = "batch"
)

// Job represents one processing-attempt lineage for a document. Attempts
// and method can change mid-flight, so it is tracked independently of the
// document's own status.
type Job struct {
	ID               string           `bson:"_id" json:"id"`
	DocumentID       string           `bson:"document_id" json:"document_id"`
	Status           JobStatus        `bson:"status" json:"status"`
	Attempts         int              `bson:"attempts" json:"attempts"`
	MaxAttempts      int              `bson:"max_attempts" json:"max_attempts"`
	ProcessingMethod ProcessingMethod `bson:"processing_method,omitempty" json:"processing_method,omitempty"`
	BatchOperationID string           `bson:"batch_operation_id,omitempty" json:"batch_operation_id,omitempty"`
	BatchStartedAt   *time.Time       `bson:"batch_started_at,omitempty" json:"batch_started_at,omitempty"`
	Priority         int              `bson:"priority" json:"priority"`
	ErrorMessage     string           `bson:"error_message,omitempty" json:"error_message,omitempty"`
	CreatedAt        time.Time        `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `bson:"updated_at" json:"updated_at"`
	CompletedAt      *time.Time       `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// Terminal reports whether the job can no longer be advanced
func (j *Job) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}
