package interfaces

import (
	"context"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/models"
)

// RecoverFunc requests (or joins) a master session recovery. Implemented by
// the recovery coordinator.
type RecoverFunc func(ctx context.Context, reason string) error

// PortalAdapter holds the portal-specific probes the orchestration core
// depends on. The full form-filling routine is a separate collaborator
// (FormFiller); only the session probes live here.
type PortalAdapter interface {
	// IsLoggedIn checks sentinel DOM elements: dashboard marker present,
	// login-form marker absent.
	IsLoggedIn(ctx context.Context, driver Driver) (bool, error)

	// PerformLogin captures the CAPTCHA, runs it through OCR, fills the login
	// form, submits, and re-checks IsLoggedIn after a bounded wait.
	PerformLogin(ctx context.Context, driver Driver) (bool, error)

	// ValidateClone is the clone-side guardian: it closes the race window
	// between a stale profile snapshot and a subsequent master recovery.
	// An invalid result forces the owning job to fail pre-submission.
	ValidateClone(ctx context.Context, driver Driver, recover RecoverFunc) (models.CloneValidity, error)

	// EntryURL returns the portal's entry point for navigation.
	EntryURL() string
}

// FormFiller performs the portal's form-filling routine for one job and
// returns a structured outcome. Implementations must observe ctx cancellation
// when blocked on driver I/O.
type FormFiller interface {
	Fill(ctx context.Context, driver Driver, job *models.Job) (*models.FormResult, error)
}
