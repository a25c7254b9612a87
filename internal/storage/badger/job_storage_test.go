package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/common"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/interfaces"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/models"
)

func newTestJobStorage(t *testing.T, cfg *common.SchedulerConfig) *JobStorage {
	t.Helper()

	if cfg == nil {
		cfg = &common.SchedulerConfig{
			MaxAttempts:  3,
			RetryBackoff: "60s",
		}
	}

	logger := arbor.NewLogger()
	db, err := NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewJobStorage(db, cfg, logger)
}

func testDoc(id, company string) *models.IntakeDocument {
	return &models.IntakeDocument{
		ID:        id,
		Company:   company,
		FormData:  map[string]interface{}{"registration": "KA01AB1234"},
		CreatedAt: time.Now(),
	}
}

func TestEnqueueDuplicateCorrelationKeyIsNoOp(t *testing.T) {
	storage := newTestJobStorage(t, nil)
	ctx := context.Background()

	first, err := storage.Enqueue(ctx, testDoc("doc-1", "rayal"))
	require.NoError(t, err)

	second, err := storage.Enqueue(ctx, testDoc("doc-1", "rayal"))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	jobs, err := storage.ListJobs(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestClaimCompleteLifecycle(t *testing.T) {
	storage := newTestJobStorage(t, nil)
	ctx := context.Background()

	jobID, err := storage.Enqueue(ctx, testDoc("doc-1", "rayal"))
	require.NoError(t, err)

	job, err := storage.ClaimNext(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, jobID, job.ID)
	assert.Equal(t, models.JobStatusProcessing, job.Status)
	assert.Equal(t, 1, job.Attempts)
	require.NotNil(t, job.StartedAt)

	// Nothing else is claimable while the only job is processing
	second, err := storage.ClaimNext(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, second)

	require.NoError(t, storage.Complete(ctx, jobID))

	final, err := storage.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	require.NotNil(t, final.CompletedAt)

	// Completion of a non-processing job is rejected
	assert.Error(t, storage.Complete(ctx, jobID))
}

func TestClaimNextFiltersByCompany(t *testing.T) {
	storage := newTestJobStorage(t, nil)
	ctx := context.Background()

	_, err := storage.Enqueue(ctx, testDoc("doc-a", "alpha"))
	require.NoError(t, err)
	_, err = storage.Enqueue(ctx, testDoc("doc-b", "beta"))
	require.NoError(t, err)

	job, err := storage.ClaimNext(ctx, "beta")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "beta", job.Company)
}

func TestFailPreSubmissionRequeuesWithBackoff(t *testing.T) {
	storage := newTestJobStorage(t, nil)
	ctx := context.Background()

	jobID, err := storage.Enqueue(ctx, testDoc("doc-1", "rayal"))
	require.NoError(t, err)

	_, err = storage.ClaimNext(ctx, "")
	require.NoError(t, err)

	require.NoError(t, storage.Fail(ctx, jobID, models.KindPreSubmission, models.ErrorRecord{
		Message: "element not found",
	}))

	job, err := storage.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, 1, job.Attempts)
	require.NotNil(t, job.NextRetryAt)
	assert.WithinDuration(t, time.Now().Add(60*time.Second), *job.NextRetryAt, 5*time.Second)
	assert.Nil(t, job.StartedAt)
	require.Len(t, job.ErrorLog, 1)
	assert.Equal(t, 1, job.ErrorLog[0].AttemptNumber)
	assert.Equal(t, string(models.StagePreSubmission), job.ErrorLog[0].Stage)

	// Backoff holds the job out of the claimable set
	claimed, err := storage.ClaimNext(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestFailedJobClaimableAfterBackoff(t *testing.T) {
	storage := newTestJobStorage(t, &common.SchedulerConfig{
		MaxAttempts:  3,
		RetryBackoff: "10ms",
	})
	ctx := context.Background()

	jobID, err := storage.Enqueue(ctx, testDoc("doc-1", "rayal"))
	require.NoError(t, err)

	_, err = storage.ClaimNext(ctx, "")
	require.NoError(t, err)
	require.NoError(t, storage.Fail(ctx, jobID, models.KindPreSubmission, models.ErrorRecord{Message: "boom"}))

	time.Sleep(30 * time.Millisecond)

	job, err := storage.ClaimNext(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 2, job.Attempts)
}

func TestFailPreSubmissionExhaustion(t *testing.T) {
	storage := newTestJobStorage(t, &common.SchedulerConfig{
		MaxAttempts:  3,
		RetryBackoff: "1ms",
	})
	ctx := context.Background()

	jobID, err := storage.Enqueue(ctx, testDoc("doc-1", "rayal"))
	require.NoError(t, err)

	for attempt := 1; attempt <= 3; attempt++ {
		time.Sleep(5 * time.Millisecond)
		job, err := storage.ClaimNext(ctx, "")
		require.NoError(t, err)
		require.NotNil(t, job, "attempt %d should be claimable", attempt)
		require.NoError(t, storage.Fail(ctx, jobID, models.KindTimeout, models.ErrorRecord{
			Message: "form never loaded",
		}))
	}

	job, err := storage.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailedPreSubmission, job.Status)
	assert.Equal(t, 3, job.Attempts)
	require.Len(t, job.ErrorLog, 3)
	for i, record := range job.ErrorLog {
		assert.Equal(t, i+1, record.AttemptNumber)
	}
	assert.NotEmpty(t, job.FinalError)
	require.NotNil(t, job.FailedAt)

	// Terminal jobs reject further failure writes
	assert.Error(t, storage.Fail(ctx, jobID, models.KindPreSubmission, models.ErrorRecord{Message: "late"}))
}

func TestFailPostSubmissionTerminalOnFirstAttempt(t *testing.T) {
	storage := newTestJobStorage(t, nil)
	ctx := context.Background()

	jobID, err := storage.Enqueue(ctx, testDoc("doc-1", "rayal"))
	require.NoError(t, err)

	_, err = storage.ClaimNext(ctx, "")
	require.NoError(t, err)

	require.NoError(t, storage.Fail(ctx, jobID, models.KindPostSubmission, models.ErrorRecord{
		Message: "confirmation page unreadable",
	}))

	job, err := storage.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailedPostSubmission, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Nil(t, job.NextRetryAt)
	require.Len(t, job.ErrorLog, 1)
	assert.Equal(t, string(models.StagePostSubmission), job.ErrorLog[0].Stage)

	// Never claimable again
	claimed, err := storage.ClaimNext(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestRecoverStuckResetsOrphanedJobs(t *testing.T) {
	storage := newTestJobStorage(t, nil)
	ctx := context.Background()

	for _, id := range []string{"doc-1", "doc-2"} {
		_, err := storage.Enqueue(ctx, testDoc(id, "rayal"))
		require.NoError(t, err)
		_, err = storage.ClaimNext(ctx, "")
		require.NoError(t, err)
	}

	// maxAge 0 resets everything in processing
	reset, err := storage.RecoverStuck(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, reset)

	counts, err := storage.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.JobStatusPending])
	assert.Equal(t, 0, counts[models.JobStatusProcessing])

	// Attempts survive the reset
	job, err := storage.GetByCorrelationKey(ctx, "doc-1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 1, job.Attempts)
}

func TestRecoverStuckRespectsMaxAge(t *testing.T) {
	storage := newTestJobStorage(t, nil)
	ctx := context.Background()

	_, err := storage.Enqueue(ctx, testDoc("doc-1", "rayal"))
	require.NoError(t, err)
	_, err = storage.ClaimNext(ctx, "")
	require.NoError(t, err)

	// Freshly started jobs are left alone
	reset, err := storage.RecoverStuck(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, reset)
}

func TestRecoverStuckExhaustedGoesTerminal(t *testing.T) {
	storage := newTestJobStorage(t, &common.SchedulerConfig{
		MaxAttempts:  1,
		RetryBackoff: "1ms",
	})
	ctx := context.Background()

	jobID, err := storage.Enqueue(ctx, testDoc("doc-1", "rayal"))
	require.NoError(t, err)
	_, err = storage.ClaimNext(ctx, "")
	require.NoError(t, err)

	reset, err := storage.RecoverStuck(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, reset)

	job, err := storage.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailedPreSubmission, job.Status)
}

func TestListJobsFilteringAndPagination(t *testing.T) {
	storage := newTestJobStorage(t, nil)
	ctx := context.Background()

	for _, id := range []string{"doc-1", "doc-2", "doc-3"} {
		_, err := storage.Enqueue(ctx, testDoc(id, "rayal"))
		require.NoError(t, err)
	}
	_, err := storage.Enqueue(ctx, testDoc("doc-4", "other"))
	require.NoError(t, err)

	// Move one job to completed
	job, err := storage.ClaimNext(ctx, "rayal")
	require.NoError(t, err)
	require.NoError(t, storage.Complete(ctx, job.ID))

	pending, err := storage.ListJobs(ctx, &interfaces.JobListOptions{Status: "pending"})
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	rayalPending, err := storage.ListJobs(ctx, &interfaces.JobListOptions{Status: "pending", Company: "rayal"})
	require.NoError(t, err)
	assert.Len(t, rayalPending, 2)

	multi, err := storage.ListJobs(ctx, &interfaces.JobListOptions{Status: "pending,completed"})
	require.NoError(t, err)
	assert.Len(t, multi, 4)

	paged, err := storage.ListJobs(ctx, &interfaces.JobListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, paged, 2)

	offset, err := storage.ListJobs(ctx, &interfaces.JobListOptions{Limit: 10, Offset: 3})
	require.NoError(t, err)
	assert.Len(t, offset, 1)
}

func TestGetByCorrelationKeyMissingReturnsNil(t *testing.T) {
	storage := newTestJobStorage(t, nil)

	job, err := storage.GetByCorrelationKey(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, job)
}
