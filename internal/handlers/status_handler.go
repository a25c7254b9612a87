package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/common"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/interfaces"
)

// StatusHandler serves process health, version and recovery history
type StatusHandler struct {
	recoveries map[string]interfaces.RecoveryCoordinator // keyed by company
	startedAt  time.Time
	logger     arbor.ILogger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(recoveries map[string]interfaces.RecoveryCoordinator, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		recoveries: recoveries,
		startedAt:  time.Now(),
		logger:     logger,
	}
}

// HealthHandler handles GET /api/health
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(h.startedAt).String(),
	})
}

// VersionHandler handles GET /api/version
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetFullVersion(),
	})
}

// RecoveryHistoryHandler handles GET /api/recovery/history. Returns the
// bounded attempt ring per portal so operators can see ladder activity.
func (h *StatusHandler) RecoveryHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	history := make(map[string]interface{}, len(h.recoveries))
	for company, coordinator := range h.recoveries {
		history[company] = coordinator.History()
	}

	WriteJSON(w, http.StatusOK, history)
}

// NotFoundHandler handles unmatched API routes
func (h *StatusHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, "not found")
}
