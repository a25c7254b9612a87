package interfaces

import (
	"context"
	"time"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/models"
)

// MasterSession owns the long-lived authenticated browser context whose
// profile directory is the basis for per-job clones.
type MasterSession interface {
	// Initialize idempotently launches the master driver, navigates to the
	// portal entry URL and logs in if needed. Failure is fatal at process
	// start.
	Initialize(ctx context.Context) error

	// Check probes the live session and updates the freshness timestamp.
	Check(ctx context.Context) (bool, error)

	// IsFresh reports active && (now - last_checked_at) <= horizon. A stale
	// active must be treated as unknown by callers.
	IsFresh(horizon time.Duration) bool

	// Shutdown releases the master driver.
	Shutdown()
}

// RecoveryCoordinator runs the soft/hard/nuclear ladder under single-flight
// coordination: concurrent callers collapse onto one ladder execution and all
// observe its outcome.
type RecoveryCoordinator interface {
	// Recover starts a recovery or joins one in flight. A joiner whose ctx
	// expires detaches and fails locally without aborting the recovery.
	Recover(ctx context.Context, reason string) error

	// History returns a snapshot of the bounded attempt history ring.
	History() []models.RecoveryAttempt
}
