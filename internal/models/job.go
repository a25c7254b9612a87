// -----------------------------------------------------------------------
// Submission Job - Durable queue record for one portal submission
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus represents the lifecycle state of a submission job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	// JobStatusFailedPreSubmission is terminal: the portal never accepted a
	// submit action and all retry attempts are exhausted.
	JobStatusFailedPreSubmission JobStatus = "failed_pre_submission"
	// JobStatusFailedPostSubmission is terminal after a single attempt: the
	// portal accepted the submit action, so the job must never be retried.
	JobStatusFailedPostSubmission JobStatus = "failed_post_submission"
)

// IsTerminal returns true for statuses that permit no further mutation
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted ||
		s == JobStatusFailedPreSubmission ||
		s == JobStatusFailedPostSubmission
}

// ErrorRecord is one append-only entry in a job's error log
type ErrorRecord struct {
	Timestamp     time.Time `json:"timestamp"`
	AttemptNumber int       `json:"attempt_number"`
	Message       string    `json:"message"`
	Kind          string    `json:"kind"`  // Failure taxonomy kind (see failure.go)
	Stage         string    `json:"stage"` // "pre-submission" or "post-submission"
	ScreenshotRef string    `json:"screenshot_ref,omitempty"`
}

// Job is the persistent unit of work driving one portal submission.
// CorrelationKey is the upstream intake document ID and is unique per job.
type Job struct {
	ID             string                 `badgerhold:"key" json:"id"`
	CorrelationKey string                 `badgerhold:"unique" json:"correlation_key"`
	Company        string                 `badgerhold:"index" json:"company"`
	FormData       map[string]interface{} `json:"form_data"`

	Status      JobStatus `badgerhold:"index" json:"status"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`

	CreatedAt     time.Time  `badgerhold:"index" json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	FailedAt      *time.Time `json:"failed_at,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`

	ErrorLog   []ErrorRecord `json:"error_log"`
	LastError  string        `json:"last_error,omitempty"`
	FinalError string        `json:"final_error,omitempty"`
}

// NewJob creates a pending job for an intake document
func NewJob(id, correlationKey, company string, formData map[string]interface{}, maxAttempts int) *Job {
	if formData == nil {
		formData = make(map[string]interface{})
	}
	return &Job{
		ID:             id,
		CorrelationKey: correlationKey,
		Company:        company,
		FormData:       formData,
		Status:         JobStatusPending,
		Attempts:       0,
		MaxAttempts:    maxAttempts,
		CreatedAt:      time.Now(),
		ErrorLog:       []ErrorRecord{},
	}
}

// Validate validates the job record
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if j.CorrelationKey == "" {
		return fmt.Errorf("correlation key is required")
	}
	if j.Company == "" {
		return fmt.Errorf("company is required")
	}
	if j.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	return nil
}

// AppendError appends a record to the error log and updates the denormalised
// convenience fields. The error log is append-only and bounded by attempts.
func (j *Job) AppendError(record ErrorRecord) {
	j.ErrorLog = append(j.ErrorLog, record)
	j.LastError = record.Message
}

// RetriesRemaining returns true when the job may be re-queued after a
// pre-submission failure
func (j *Job) RetriesRemaining() bool {
	return j.Attempts < j.MaxAttempts
}

// ToJSON serializes the job for API responses
func (j *Job) ToJSON() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return data, nil
}
