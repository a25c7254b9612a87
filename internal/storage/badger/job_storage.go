package badger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/common"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/interfaces"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/models"
)

// JobStorage implements the durable job queue over badgerhold. ClaimNext is
// serialised by a process-local mutex: this is a single-process queue, so
// claim atomicity does not need a database transaction conflict loop.
type JobStorage struct {
	db      *BadgerDB
	config  *common.SchedulerConfig
	logger  arbor.ILogger
	claimMu sync.Mutex
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, config *common.SchedulerConfig, logger arbor.ILogger) *JobStorage {
	return &JobStorage{
		db:     db,
		config: config,
		logger: logger,
	}
}

// Enqueue creates a pending job for an intake document. A duplicate
// correlation key returns the existing job's ID without touching it.
func (s *JobStorage) Enqueue(ctx context.Context, doc *models.IntakeDocument) (string, error) {
	if err := doc.Validate(); err != nil {
		return "", fmt.Errorf("invalid intake document: %w", err)
	}

	existing, err := s.GetByCorrelationKey(ctx, doc.ID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		s.logger.Debug().
			Str("correlation_key", doc.ID).
			Str("job_id", existing.ID).
			Msg("Duplicate intake document, keeping existing job")
		return existing.ID, nil
	}

	job := models.NewJob(common.NewJobID(), doc.ID, doc.Company, doc.FormData, s.config.MaxAttempts)
	if err := s.db.Store().Insert(job.ID, job); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("correlation_key", job.CorrelationKey).
		Str("company", job.Company).
		Msg("Job enqueued")

	return job.ID, nil
}

// ClaimNext atomically claims the oldest claimable pending job. Returns nil
// when nothing is due.
func (s *JobStorage) ClaimNext(ctx context.Context, company string) (*models.Job, error) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	query := badgerhold.Where("Status").Eq(models.JobStatusPending).SortBy("CreatedAt")
	if company != "" {
		query = query.And("Company").Eq(company)
	}

	var candidates []models.Job
	if err := s.db.Store().Find(&candidates, query); err != nil {
		return nil, fmt.Errorf("failed to query pending jobs: %w", err)
	}

	now := time.Now()
	for i := range candidates {
		job := candidates[i]
		if job.NextRetryAt != nil && job.NextRetryAt.After(now) {
			continue
		}

		job.Status = models.JobStatusProcessing
		job.Attempts++
		job.StartedAt = &now
		job.LastAttemptAt = &now
		job.NextRetryAt = nil

		if err := s.db.Store().Update(job.ID, &job); err != nil {
			return nil, fmt.Errorf("failed to claim job %s: %w", job.ID, err)
		}

		s.logger.Debug().
			Str("job_id", job.ID).
			Int("attempt", job.Attempts).
			Msg("Job claimed")

		return &job, nil
	}

	return nil, nil
}

// Complete transitions a processing job to completed
func (s *JobStorage) Complete(ctx context.Context, jobID string) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusProcessing {
		return fmt.Errorf("job %s is %s, not processing", jobID, job.Status)
	}

	now := time.Now()
	job.Status = models.JobStatusCompleted
	job.CompletedAt = &now
	job.NextRetryAt = nil

	if err := s.db.Store().Update(job.ID, job); err != nil {
		return fmt.Errorf("failed to complete job %s: %w", jobID, err)
	}

	s.logger.Info().Str("job_id", jobID).Int("attempts", job.Attempts).Msg("Job completed")
	return nil
}

// Fail appends the error record and routes the job by the failure kind's
// stage. A post-submission failure is terminal immediately: the portal may
// have accepted the submit, so a retry could duplicate the policy. A
// pre-submission failure re-queues with backoff while attempts remain.
func (s *JobStorage) Fail(ctx context.Context, jobID string, kind models.FailureKind, record models.ErrorRecord) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("job %s is already terminal (%s)", jobID, job.Status)
	}

	now := time.Now()
	if record.Timestamp.IsZero() {
		record.Timestamp = now
	}
	if record.AttemptNumber == 0 {
		record.AttemptNumber = job.Attempts
	}
	if record.Kind == "" {
		record.Kind = string(kind)
	}
	if record.Stage == "" {
		record.Stage = string(kind.Stage())
	}
	job.AppendError(record)

	switch {
	case kind.Stage() == models.StagePostSubmission:
		job.Status = models.JobStatusFailedPostSubmission
		job.FailedAt = &now
		job.FinalError = record.Message
		job.NextRetryAt = nil
		s.logger.Warn().
			Str("job_id", jobID).
			Str("kind", string(kind)).
			Msg("Job failed post-submission, no retry permitted")

	case job.RetriesRemaining():
		retryAt := now.Add(s.config.RetryBackoffDuration())
		job.Status = models.JobStatusPending
		job.StartedAt = nil
		job.NextRetryAt = &retryAt
		s.logger.Warn().
			Str("job_id", jobID).
			Str("kind", string(kind)).
			Int("attempt", job.Attempts).
			Int("max_attempts", job.MaxAttempts).
			Str("next_retry_at", retryAt.Format(time.RFC3339)).
			Msg("Job failed pre-submission, re-queued with backoff")

	default:
		job.Status = models.JobStatusFailedPreSubmission
		job.FailedAt = &now
		job.FinalError = record.Message
		job.NextRetryAt = nil
		s.logger.Error().
			Str("job_id", jobID).
			Str("kind", string(kind)).
			Int("attempts", job.Attempts).
			Msg("Job failed pre-submission, attempts exhausted")
	}

	if err := s.db.Store().Update(job.ID, job); err != nil {
		return fmt.Errorf("failed to record failure for job %s: %w", jobID, err)
	}
	return nil
}

// RecoverStuck resets processing jobs older than maxAge back to pending,
// preserving attempt counts. maxAge 0 resets everything in processing; the
// scheduler uses that at startup since no job can legitimately be in flight
// then. A stuck job with no attempts left goes terminal instead.
func (s *JobStorage) RecoverStuck(ctx context.Context, maxAge time.Duration) (int, error) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	var stuck []models.Job
	if err := s.db.Store().Find(&stuck, badgerhold.Where("Status").Eq(models.JobStatusProcessing)); err != nil {
		return 0, fmt.Errorf("failed to query processing jobs: %w", err)
	}

	now := time.Now()
	reset := 0
	for i := range stuck {
		job := stuck[i]
		if maxAge > 0 && job.StartedAt != nil && now.Sub(*job.StartedAt) < maxAge {
			continue
		}

		job.AppendError(models.ErrorRecord{
			Timestamp:     now,
			AttemptNumber: job.Attempts,
			Message:       "job interrupted while processing",
			Kind:          string(models.KindPreSubmission),
			Stage:         string(models.StagePreSubmission),
		})

		if job.RetriesRemaining() {
			job.Status = models.JobStatusPending
			job.StartedAt = nil
			job.NextRetryAt = nil
		} else {
			job.Status = models.JobStatusFailedPreSubmission
			job.FailedAt = &now
			job.FinalError = "job interrupted while processing and attempts exhausted"
		}

		if err := s.db.Store().Update(job.ID, &job); err != nil {
			return reset, fmt.Errorf("failed to reset stuck job %s: %w", job.ID, err)
		}
		reset++

		s.logger.Warn().
			Str("job_id", job.ID).
			Str("status", string(job.Status)).
			Msg("Stuck processing job reset")
	}

	return reset, nil
}

// GetJob returns a job by ID
func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("job not found: %s", jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// GetByCorrelationKey returns the job for an intake document ID, or nil when
// none exists
func (s *JobStorage) GetByCorrelationKey(ctx context.Context, key string) (*models.Job, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("CorrelationKey").Eq(key)); err != nil {
		return nil, fmt.Errorf("failed to query by correlation key: %w", err)
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}

// ListJobs returns jobs matching the options, newest first
func (s *JobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	query := badgerhold.Where("ID").Ne("")

	if opts != nil {
		if opts.Status != "" {
			statuses := make([]interface{}, 0, 4)
			for _, st := range strings.Split(opts.Status, ",") {
				statuses = append(statuses, models.JobStatus(strings.TrimSpace(st)))
			}
			query = query.And("Status").In(statuses...)
		}
		if opts.Company != "" {
			query = query.And("Company").Eq(opts.Company)
		}
	}

	query = query.SortBy("CreatedAt").Reverse()

	if opts != nil {
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
	}

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// CountByStatus returns the number of jobs in each lifecycle status
func (s *JobStorage) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	counts := make(map[models.JobStatus]int)
	statuses := []models.JobStatus{
		models.JobStatusPending,
		models.JobStatusProcessing,
		models.JobStatusCompleted,
		models.JobStatusFailedPreSubmission,
		models.JobStatusFailedPostSubmission,
	}

	for _, status := range statuses {
		var jobs []models.Job
		if err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(status)); err != nil {
			return nil, fmt.Errorf("failed to count %s jobs: %w", status, err)
		}
		counts[status] = len(jobs)
	}

	return counts, nil
}

var _ interfaces.JobStore = (*JobStorage)(nil)
