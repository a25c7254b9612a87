// -----------------------------------------------------------------------
// Failure Taxonomy - classification of submission failures
// -----------------------------------------------------------------------

package models

import (
	"errors"
	"fmt"
)

// FailureKind identifies the cause class of a submission failure.
// Kinds map onto exactly two stages: anything that happens before the portal
// accepts the submit action is retriable, anything after is not.
type FailureKind string

const (
	KindPreSubmission     FailureKind = "pre_submission"
	KindPostSubmission    FailureKind = "post_submission"
	KindSessionExpired    FailureKind = "session_expired"
	KindTimeout           FailureKind = "timeout"
	KindRecoveryExhausted FailureKind = "recovery_exhausted"
	KindProfileIO         FailureKind = "profile_io"
	KindBrowserLaunch     FailureKind = "browser_launch"
)

// Stage discriminates failures relative to the portal's submit action
type Stage string

const (
	StagePreSubmission  Stage = "pre-submission"
	StagePostSubmission Stage = "post-submission"
)

// Stage returns the stage a failure kind belongs to. Every kind except
// post-submission is pre-submission by construction: duplicates to the portal
// are only possible once a submit has been accepted.
func (k FailureKind) Stage() Stage {
	if k == KindPostSubmission {
		return StagePostSubmission
	}
	return StagePreSubmission
}

// Retriable reports whether a failure of this kind may be retried
func (k FailureKind) Retriable() bool {
	return k.Stage() == StagePreSubmission
}

// FailureError carries a failure kind through the scheduler's error paths.
// Errors below the form-fill layer are caught at the scheduler and wrapped
// into this type.
type FailureError struct {
	Kind          FailureKind
	Message       string
	ScreenshotRef string
	Err           error
}

func (e *FailureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FailureError) Unwrap() error {
	return e.Err
}

// NewFailure creates a FailureError of the given kind
func NewFailure(kind FailureKind, message string, err error) *FailureError {
	return &FailureError{Kind: kind, Message: message, Err: err}
}

// ClassifyError extracts the failure kind from an error chain.
// Unknown errors classify as pre-submission (retriable) per the scheduler's
// unexpected-error safety net.
func ClassifyError(err error) FailureKind {
	var fe *FailureError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindPreSubmission
}
