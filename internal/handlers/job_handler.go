package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/interfaces"
)

const defaultListLimit = 50

// JobHandler is the read-only query surface over the job queue
type JobHandler struct {
	jobs   interfaces.JobStore
	logger arbor.ILogger
}

// NewJobHandler creates a new JobHandler
func NewJobHandler(jobs interfaces.JobStore, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		jobs:   jobs,
		logger: logger,
	}
}

// ListJobsHandler handles GET /api/jobs?status=&company=&limit=&offset=
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	opts := &interfaces.JobListOptions{
		Status:  r.URL.Query().Get("status"),
		Company: r.URL.Query().Get("company"),
		Limit:   QueryInt(r, "limit", defaultListLimit),
		Offset:  QueryInt(r, "offset", 0),
	}

	jobs, err := h.jobs.ListJobs(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":   jobs,
		"count":  len(jobs),
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}

// GetJobHandler handles GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		WriteError(w, http.StatusBadRequest, "invalid job ID")
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "job not found")
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// GetByCorrelationKeyHandler handles GET /api/jobs/by-key/{key}. The key is
// the upstream intake document ID, which is how operator tooling looks
// submissions up.
func (h *JobHandler) GetByCorrelationKeyHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/api/jobs/by-key/")
	if key == "" {
		WriteError(w, http.StatusBadRequest, "correlation key is required")
		return
	}

	job, err := h.jobs.GetByCorrelationKey(r.Context(), key)
	if err != nil {
		h.logger.Error().Err(err).Str("correlation_key", key).Msg("Correlation key lookup failed")
		WriteError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if job == nil {
		WriteError(w, http.StatusNotFound, "no job for correlation key")
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// GetJobStatsHandler handles GET /api/jobs/stats
func (h *JobHandler) GetJobStatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	counts, err := h.jobs.CountByStatus(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to count jobs")
		WriteError(w, http.StatusInternalServerError, "failed to count jobs")
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"total":     total,
		"by_status": counts,
	})
}
