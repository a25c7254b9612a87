package portal

import (
	"context"
	"strings"
	"time"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/interfaces"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/models"
)

const (
	// directLoginAttempts is how many in-place logins a clone gets before the
	// worker falls back to master recovery
	directLoginAttempts = 3

	// ambiguitySettleWait bounds the grace period when neither sentinel is
	// visible yet (page still rendering)
	ambiguitySettleWait = 3 * time.Second
)

// ValidateClone decides whether a freshly launched clone carries a usable
// session. Order matters: the login form is checked before the dashboard
// marker because some portal pages render both during transition, and a
// visible login form always wins.
//
// When the clone lands on the login page, a few direct logins are attempted
// in place (new CAPTCHA each round). Only after those fail is master
// recovery requested, and even then the clone itself is reported invalid so
// the job retries against a clone of the recovered master.
func (a *Adapter) ValidateClone(ctx context.Context, driver interfaces.Driver, recover interfaces.RecoverFunc) (models.CloneValidity, error) {
	loginForm, err := driver.Find(ctx, a.selectors.LoginForm)
	if err != nil {
		return models.CloneInvalid, err
	}
	if loginForm {
		return a.recoverViaDirectLogin(ctx, driver, recover)
	}

	dashboard, err := driver.Find(ctx, a.selectors.DashboardMarker)
	if err != nil {
		return models.CloneInvalid, err
	}
	if dashboard {
		return models.CloneValid, nil
	}

	// Neither sentinel found. A URL on the login path means a redirect
	// already happened even if the form has not rendered yet.
	currentURL, err := driver.CurrentURL(ctx)
	if err != nil {
		return models.CloneInvalid, err
	}
	if a.selectors.LoginPath != "" && strings.Contains(currentURL, a.selectors.LoginPath) {
		return a.recoverViaDirectLogin(ctx, driver, recover)
	}

	// Ambiguous page, give it one bounded settle and re-probe once
	a.logger.Debug().
		Str("company", a.creds.Company).
		Str("url", currentURL).
		Msg("Clone state ambiguous, waiting for page to settle")

	if err := driver.Sleep(ctx, ambiguitySettleWait); err != nil {
		return models.CloneInvalid, err
	}

	loginForm, err = driver.Find(ctx, a.selectors.LoginForm)
	if err != nil {
		return models.CloneInvalid, err
	}
	if loginForm {
		return a.recoverViaDirectLogin(ctx, driver, recover)
	}

	dashboard, err = driver.Find(ctx, a.selectors.DashboardMarker)
	if err != nil {
		return models.CloneInvalid, err
	}
	if dashboard {
		return models.CloneValid, nil
	}

	a.logger.Warn().Str("company", a.creds.Company).Msg("Clone state still ambiguous after settle, treating as invalid")
	return models.CloneInvalid, nil
}

// recoverViaDirectLogin tries logging the clone in from its current page. On
// exhaustion it requests master recovery and reports the clone invalid.
func (a *Adapter) recoverViaDirectLogin(ctx context.Context, driver interfaces.Driver, recover interfaces.RecoverFunc) (models.CloneValidity, error) {
	for attempt := 1; attempt <= directLoginAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return models.CloneInvalid, err
		}

		ok, err := a.PerformLogin(ctx, driver)
		if err != nil {
			a.logger.Warn().Err(err).
				Str("company", a.creds.Company).
				Int("attempt", attempt).
				Msg("Direct clone login errored")
			continue
		}
		if ok {
			a.logger.Info().
				Str("company", a.creds.Company).
				Int("attempt", attempt).
				Msg("Clone recovered via direct login")
			return models.CloneValid, nil
		}
	}

	a.logger.Warn().
		Str("company", a.creds.Company).
		Int("attempts", directLoginAttempts).
		Msg("Direct clone login exhausted, requesting master session recovery")

	if recover != nil {
		if err := recover(ctx, "clone session expired and direct login failed"); err != nil {
			a.logger.Error().Err(err).Str("company", a.creds.Company).Msg("Master session recovery failed")
		}
	}

	return models.CloneInvalid, nil
}
