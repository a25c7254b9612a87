package watcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/common"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/models"
	badgerstorage "github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/storage/badger"
)

type watcherHarness struct {
	intake *badgerstorage.IntakeStorage
	jobs   *badgerstorage.JobStorage
}

func newWatcherHarness(t *testing.T) *watcherHarness {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := badgerstorage.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &watcherHarness{
		intake: badgerstorage.NewIntakeStorage(db, badgerstorage.DefaultIntakePrefix, logger),
		jobs: badgerstorage.NewJobStorage(db, &common.SchedulerConfig{
			MaxAttempts:  3,
			RetryBackoff: "60s",
		}, logger),
	}
}

func (h *watcherHarness) awaitJob(t *testing.T, correlationKey string) *models.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := h.jobs.GetByCorrelationKey(context.Background(), correlationKey)
		require.NoError(t, err)
		if job != nil {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("no job appeared for correlation key %s", correlationKey)
	return nil
}

func TestWatcherEnqueuesInsertedDocuments(t *testing.T) {
	h := newWatcherHarness(t)
	service := NewService(h.intake, h.jobs, nil, []string{"rayal"}, arbor.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		service.Start(ctx)
	}()

	// Give the change-feed subscription a moment to register
	time.Sleep(100 * time.Millisecond)

	doc := &models.IntakeDocument{
		ID:        "doc-1",
		Company:   "rayal",
		FormData:  map[string]interface{}{"registration": "KA01AB1234"},
		CreatedAt: time.Now(),
	}
	require.NoError(t, h.intake.Insert(ctx, doc))

	job := h.awaitJob(t, "doc-1")
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, "rayal", job.Company)
	assert.Equal(t, "KA01AB1234", job.FormData["registration"])

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop on context cancellation")
	}
}

func TestWatcherDropsUnknownCompany(t *testing.T) {
	h := newWatcherHarness(t)
	service := NewService(h.intake, h.jobs, nil, []string{"rayal"}, arbor.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go service.Start(ctx)
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, h.intake.Insert(ctx, &models.IntakeDocument{
		ID:        "doc-other",
		Company:   "some-other-vendor",
		FormData:  map[string]interface{}{"registration": "KA01AB1234"},
		CreatedAt: time.Now(),
	}))
	require.NoError(t, h.intake.Insert(ctx, &models.IntakeDocument{
		ID:        "doc-known",
		Company:   "rayal",
		FormData:  map[string]interface{}{"registration": "KA02CD5678"},
		CreatedAt: time.Now(),
	}))

	// The known-company document lands; the unknown one never does
	h.awaitJob(t, "doc-known")
	job, err := h.jobs.GetByCorrelationKey(ctx, "doc-other")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestHandleDropsInvalidDocument(t *testing.T) {
	h := newWatcherHarness(t)
	service := NewService(h.intake, h.jobs, nil, []string{"rayal"}, arbor.NewLogger())

	// Missing company fails validation before any enqueue
	service.handle(context.Background(), &models.IntakeDocument{ID: "doc-bad", CreatedAt: time.Now()})

	job, err := h.jobs.GetByCorrelationKey(context.Background(), "doc-bad")
	require.NoError(t, err)
	assert.Nil(t, job)
}
