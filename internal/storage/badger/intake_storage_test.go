package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/common"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/models"
)

func newTestIntakeStorage(t *testing.T) *IntakeStorage {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewIntakeStorage(db, "", logger)
}

func TestIntakeInsertAndGet(t *testing.T) {
	storage := newTestIntakeStorage(t)
	ctx := context.Background()

	doc := testDoc("doc-1", "rayal")
	require.NoError(t, storage.Insert(ctx, doc))

	got, err := storage.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, doc.Company, got.Company)
	assert.Equal(t, "KA01AB1234", got.FormData["registration"])

	_, err = storage.Get(ctx, "missing")
	assert.Error(t, err)
}

func TestIntakeInsertRejectsInvalidDocument(t *testing.T) {
	storage := newTestIntakeStorage(t)

	err := storage.Insert(context.Background(), &models.IntakeDocument{ID: "x"})
	assert.Error(t, err)
}

func TestSubscribeDeliversInserts(t *testing.T) {
	storage := newTestIntakeStorage(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *models.IntakeDocument, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		storage.Subscribe(ctx, func(doc *models.IntakeDocument) {
			received <- doc
		})
	}()

	// Give the subscription a moment to register before inserting
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, storage.Insert(ctx, testDoc("doc-1", "rayal")))
	require.NoError(t, storage.Insert(ctx, testDoc("doc-2", "rayal")))

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case doc := <-received:
			seen[doc.ID] = true
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for change-feed delivery")
		}
	}
	assert.True(t, seen["doc-1"])
	assert.True(t, seen["doc-2"])

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("subscription did not stop on context cancellation")
	}
}
