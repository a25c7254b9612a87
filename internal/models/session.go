package models

import "time"

// RecoveryLevel identifies one rung of the recovery ladder
type RecoveryLevel string

const (
	RecoveryLevelSoft    RecoveryLevel = "soft"
	RecoveryLevelHard    RecoveryLevel = "hard"
	RecoveryLevelNuclear RecoveryLevel = "nuclear"
)

// RecoveryAttempt is one entry in the coordinator's bounded history ring
type RecoveryAttempt struct {
	Level     RecoveryLevel `json:"level"`
	Success   bool          `json:"success"`
	Reason    string        `json:"reason"`
	Timestamp time.Time     `json:"timestamp"`
}

// CloneValidity is the outcome of the post-navigation clone probe
type CloneValidity string

const (
	CloneValid   CloneValidity = "valid"
	CloneInvalid CloneValidity = "invalid"
)

// FormResult is the structured outcome returned by the portal's form-filling
// routine. The orchestration core never inspects page content itself; it only
// classifies this result.
type FormResult struct {
	Success       bool   `json:"success"`
	Stage         Stage  `json:"stage"`
	Error         string `json:"error,omitempty"`
	ScreenshotRef string `json:"screenshot_ref,omitempty"`
}
