package interfaces

import (
	"context"
	"time"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/models"
)

// JobListOptions filters and paginates job queries
type JobListOptions struct {
	Status  string // Comma-separated status values; empty matches all
	Company string
	Limit   int
	Offset  int
}

// JobStore is the durable queue over the job collection. All operations are
// serialisable at the document level; ClaimNext is atomic under concurrent
// scheduler workers.
type JobStore interface {
	// Enqueue creates a pending job for an intake document. A duplicate
	// correlation key is a no-op returning the existing job's ID.
	Enqueue(ctx context.Context, doc *models.IntakeDocument) (string, error)

	// ClaimNext atomically selects a pending job whose next_retry_at has
	// passed (or is unset), marks it processing, stamps started_at and
	// increments attempts. Returns nil when no job is claimable.
	ClaimNext(ctx context.Context, company string) (*models.Job, error)

	// Complete transitions processing -> completed.
	Complete(ctx context.Context, jobID string) error

	// Fail appends the error record and either re-queues the job with backoff
	// (pre-submission, attempts remaining) or moves it to the terminal status
	// matching the failure kind's stage.
	Fail(ctx context.Context, jobID string, kind models.FailureKind, record models.ErrorRecord) error

	// RecoverStuck transitions processing jobs older than maxAge back to
	// pending, preserving attempts. Returns the number of jobs reset.
	RecoverStuck(ctx context.Context, maxAge time.Duration) (int, error)

	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	GetByCorrelationKey(ctx context.Context, key string) (*models.Job, error)
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.Job, error)
	CountByStatus(ctx context.Context) (map[models.JobStatus]int, error)
}

// IntakeStore is the upstream document collection. Insert feeds the change
// stream consumed by the ingestion watcher.
type IntakeStore interface {
	Insert(ctx context.Context, doc *models.IntakeDocument) error
	Get(ctx context.Context, id string) (*models.IntakeDocument, error)

	// Subscribe blocks delivering inserted documents to the handler until ctx
	// is cancelled. Reconnection on stream error is the caller's concern.
	Subscribe(ctx context.Context, handler func(doc *models.IntakeDocument)) error
}
