package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/common"
	badgerstorage "github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/storage/badger"
)

func newTestIntakeHandler(t *testing.T) *IntakeHandler {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := badgerstorage.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	intake := badgerstorage.NewIntakeStorage(db, badgerstorage.DefaultIntakePrefix, logger)
	return NewIntakeHandler(intake, logger)
}

func TestCreateIntakeHandlerAcceptsDocument(t *testing.T) {
	handler := newTestIntakeHandler(t)

	body := `{"id":"doc-1","company":"rayal","form_data":{"registration":"KA01AB1234"}}`
	rec := httptest.NewRecorder()
	handler.CreateIntakeHandler(rec, httptest.NewRequest("POST", "/api/intake", strings.NewReader(body)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, "doc-1", resp["id"])
	assert.Equal(t, "accepted", resp["status"])

	// The stored document is readable back
	rec = httptest.NewRecorder()
	handler.GetIntakeHandler(rec, httptest.NewRequest("GET", "/api/intake/doc-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rayal", decodeBody(t, rec)["company"])
}

func TestCreateIntakeHandlerGeneratesID(t *testing.T) {
	handler := newTestIntakeHandler(t)

	rec := httptest.NewRecorder()
	handler.CreateIntakeHandler(rec, httptest.NewRequest("POST", "/api/intake", strings.NewReader(`{"company":"rayal"}`)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.NotEmpty(t, decodeBody(t, rec)["id"])
}

func TestCreateIntakeHandlerRejectsMissingCompany(t *testing.T) {
	handler := newTestIntakeHandler(t)

	rec := httptest.NewRecorder()
	handler.CreateIntakeHandler(rec, httptest.NewRequest("POST", "/api/intake", strings.NewReader(`{"id":"doc-1"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetIntakeHandlerNotFound(t *testing.T) {
	handler := newTestIntakeHandler(t)

	rec := httptest.NewRecorder()
	handler.GetIntakeHandler(rec, httptest.NewRequest("GET", "/api/intake/absent", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
