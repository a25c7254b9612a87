package portal

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/interfaces"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/models"
)

// FormSelectors locate the policy submission form and its outcome sentinels
type FormSelectors struct {
	NewPolicyLink      string // Opens the submission form from the dashboard
	SubmitButton       string
	ConfirmationMarker string // Present only after the portal accepted the submission
	ErrorMarker        string // Present when the portal rejected the submission
	ErrorText          string // Element whose text carries the rejection reason
}

// DefaultFormSelectors returns the selectors for the Rayal vendor portal's
// policy form
func DefaultFormSelectors() FormSelectors {
	return FormSelectors{
		NewPolicyLink:      "a#new-policy",
		SubmitButton:       "button#policy-submit",
		ConfirmationMarker: "#submission-confirmation",
		ErrorMarker:        "#submission-error",
		ErrorText:          "#submission-error .message",
	}
}

// submitSettleWait bounds how long the portal gets to answer a submission
const submitSettleWait = 5 * time.Second

// FormFiller drives the portal's policy form from a job's form data. Field
// keys map directly onto input names; anything fancier belongs in a
// portal-specific replacement of this type.
//
// The stage discriminator is strict: every error up to and including the
// submit click is pre-submission, and so is an explicit rejection page, since
// the portal definitively refused the policy. Any ambiguous outcome after the
// click is post-submission, because the portal may have accepted the policy
// even when the outcome page is unreadable.
type FormFiller struct {
	selectors FormSelectors
	logger    arbor.ILogger
}

// NewFormFiller creates the default form routine
func NewFormFiller(selectors FormSelectors, logger arbor.ILogger) *FormFiller {
	return &FormFiller{
		selectors: selectors,
		logger:    logger,
	}
}

// Fill submits one policy form and classifies the outcome
func (f *FormFiller) Fill(ctx context.Context, driver interfaces.Driver, job *models.Job) (*models.FormResult, error) {
	preFail := func(message string) *models.FormResult {
		return &models.FormResult{Success: false, Stage: models.StagePreSubmission, Error: message}
	}

	if f.selectors.NewPolicyLink != "" {
		if err := driver.Click(ctx, f.selectors.NewPolicyLink); err != nil {
			return preFail(fmt.Sprintf("failed to open policy form: %v", err)), nil
		}
	}

	// Deterministic field order keeps failures reproducible
	keys := make([]string, 0, len(job.FormData))
	for key := range job.FormData {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		selector := fmt.Sprintf(`[name=%q]`, key)
		value := fmt.Sprint(job.FormData[key])
		if err := driver.SetValue(ctx, selector, value); err != nil {
			return preFail(fmt.Sprintf("failed to fill field %s: %v", key, err)), nil
		}
	}

	if err := driver.Click(ctx, f.selectors.SubmitButton); err != nil {
		return preFail(fmt.Sprintf("failed to click submit: %v", err)), nil
	}

	// The submit click landed: from here every failure is post-submission
	if err := driver.Sleep(ctx, submitSettleWait); err != nil {
		return &models.FormResult{
			Success: false,
			Stage:   models.StagePostSubmission,
			Error:   fmt.Sprintf("interrupted awaiting submission outcome: %v", err),
		}, nil
	}

	confirmed, err := driver.Find(ctx, f.selectors.ConfirmationMarker)
	if err != nil {
		return &models.FormResult{
			Success: false,
			Stage:   models.StagePostSubmission,
			Error:   fmt.Sprintf("failed to probe submission outcome: %v", err),
		}, nil
	}
	if confirmed {
		return &models.FormResult{Success: true, Stage: models.StagePostSubmission}, nil
	}

	rejected, err := driver.Find(ctx, f.selectors.ErrorMarker)
	if err == nil && rejected {
		// An explicit rejection page means the policy was not accepted, so a
		// retry cannot duplicate it
		message := "portal rejected the submission"
		if f.selectors.ErrorText != "" {
			if text, terr := driver.Text(ctx, f.selectors.ErrorText); terr == nil && text != "" {
				message = text
			}
		}
		return preFail(message), nil
	}

	return &models.FormResult{
		Success: false,
		Stage:   models.StagePostSubmission,
		Error:   "no submission outcome visible after settle",
	}, nil
}

var _ interfaces.FormFiller = (*FormFiller)(nil)
