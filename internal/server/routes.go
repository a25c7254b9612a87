package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Jobs (read-only status surface)
	mux.HandleFunc("/api/jobs/stats", s.app.JobHandler.GetJobStatsHandler)
	mux.HandleFunc("/api/jobs", s.app.JobHandler.ListJobsHandler)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes) // Handles /api/jobs/{id} and /api/jobs/by-key/{key}

	// API routes - Intake (feeds the change stream)
	mux.HandleFunc("/api/intake", s.app.IntakeHandler.CreateIntakeHandler)
	mux.HandleFunc("/api/intake/", s.app.IntakeHandler.GetIntakeHandler)

	// API routes - Recovery observability
	mux.HandleFunc("/api/recovery/history", s.app.StatusHandler.RecoveryHistoryHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.StatusHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.StatusHandler.NotFoundHandler)

	return mux
}

// handleJobRoutes routes job-related requests to the appropriate handler
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/jobs/by-key/") {
		s.app.JobHandler.GetByCorrelationKeyHandler(w, r)
		return
	}
	s.app.JobHandler.GetJobHandler(w, r)
}
