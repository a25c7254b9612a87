package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/interfaces"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/models"
)

// IntakeHandler accepts intake documents over HTTP. Inserts land in the
// intake collection and reach the job queue through the change stream, the
// same path records from any other producer take.
type IntakeHandler struct {
	intake interfaces.IntakeStore
	logger arbor.ILogger
}

// NewIntakeHandler creates a new IntakeHandler
func NewIntakeHandler(intake interfaces.IntakeStore, logger arbor.ILogger) *IntakeHandler {
	return &IntakeHandler{
		intake: intake,
		logger: logger,
	}
}

// CreateIntakeHandler handles POST /api/intake
func (h *IntakeHandler) CreateIntakeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var doc models.IntakeDocument
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	if err := doc.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.intake.Insert(r.Context(), &doc); err != nil {
		h.logger.Error().Err(err).Str("document_id", doc.ID).Msg("Failed to insert intake document")
		WriteError(w, http.StatusInternalServerError, "failed to insert intake document")
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"id":     doc.ID,
		"status": "accepted",
	})
}

// GetIntakeHandler handles GET /api/intake/{id}
func (h *IntakeHandler) GetIntakeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/intake/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "document ID is required")
		return
	}

	doc, err := h.intake.Get(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "intake document not found")
		return
	}

	WriteJSON(w, http.StatusOK, doc)
}
