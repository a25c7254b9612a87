// -----------------------------------------------------------------------
// Portal Adapter - session probes against the vendor portal
// -----------------------------------------------------------------------

package portal

import (
	"context"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/common"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/interfaces"
)

// Selectors are the sentinel DOM selectors the probes key on. They are
// portal-specific but stable; overridable for tests.
type Selectors struct {
	DashboardMarker string // Present only when a session is live
	LoginForm       string // Present only on the login page
	UsernameField   string
	PasswordField   string
	CaptchaImage    string
	CaptchaField    string
	SubmitButton    string
	LoginPath       string // URL fragment identifying the login page
}

// DefaultSelectors returns the selectors for the Rayal vendor portal
func DefaultSelectors() Selectors {
	return Selectors{
		DashboardMarker: "#dashboard-container",
		LoginForm:       "form#login-form",
		UsernameField:   "input#username",
		PasswordField:   "input#password",
		CaptchaImage:    "img#captcha-image",
		CaptchaField:    "input#captcha",
		SubmitButton:    "button#login-submit",
		LoginPath:       "/login",
	}
}

// loginSettleWait is how long the portal gets to process a submitted login
// before the session is re-probed
const loginSettleWait = 3 * time.Second

// Adapter implements the portal session probes. The form-filling routine for
// actual policy submissions is a separate collaborator.
type Adapter struct {
	creds     *common.PortalConfig
	selectors Selectors
	ocr       interfaces.OCRService
	limiter   *rate.Limiter // Paces CAPTCHA/OCR attempts
	logger    arbor.ILogger
}

// NewAdapter creates a portal adapter for one configured portal
func NewAdapter(creds *common.PortalConfig, selectors Selectors, ocr interfaces.OCRService, ocrInterval time.Duration, logger arbor.ILogger) *Adapter {
	if ocrInterval <= 0 {
		ocrInterval = 4 * time.Second
	}
	return &Adapter{
		creds:     creds,
		selectors: selectors,
		ocr:       ocr,
		limiter:   rate.NewLimiter(rate.Every(ocrInterval), 1),
		logger:    logger,
	}
}

// EntryURL returns the portal's entry point
func (a *Adapter) EntryURL() string {
	return a.creds.EntryURL
}

var _ interfaces.PortalAdapter = (*Adapter)(nil)

// IsLoggedIn checks the sentinel elements: dashboard marker present and
// login-form marker absent.
func (a *Adapter) IsLoggedIn(ctx context.Context, driver interfaces.Driver) (bool, error) {
	dashboard, err := driver.Find(ctx, a.selectors.DashboardMarker)
	if err != nil {
		return false, err
	}
	loginForm, err := driver.Find(ctx, a.selectors.LoginForm)
	if err != nil {
		return false, err
	}
	return dashboard && !loginForm, nil
}

// PerformLogin captures the CAPTCHA, solves it via OCR, submits the login
// form and re-probes the session after a bounded wait. A false return with
// nil error means the portal rejected the credentials or the CAPTCHA answer.
func (a *Adapter) PerformLogin(ctx context.Context, driver interfaces.Driver) (bool, error) {
	loginCtx, cancel := context.WithTimeout(ctx, a.creds.LoginTimeoutDuration())
	defer cancel()

	if err := a.limiter.Wait(loginCtx); err != nil {
		return false, err
	}

	captchaImage, err := driver.ScreenshotElement(loginCtx, a.selectors.CaptchaImage)
	if err != nil {
		a.logger.Warn().Err(err).Str("company", a.creds.Company).Msg("Failed to capture CAPTCHA image")
		return false, err
	}

	captchaText, err := a.ocr.Recognize(loginCtx, captchaImage)
	if err != nil {
		a.logger.Warn().Err(err).Str("company", a.creds.Company).Msg("CAPTCHA OCR failed")
		return false, err
	}
	captchaText = strings.TrimSpace(captchaText)

	a.logger.Debug().
		Str("company", a.creds.Company).
		Int("captcha_len", len(captchaText)).
		Msg("Submitting login form")

	if err := driver.SetValue(loginCtx, a.selectors.UsernameField, a.creds.Username); err != nil {
		return false, err
	}
	if err := driver.SetValue(loginCtx, a.selectors.PasswordField, a.creds.Password); err != nil {
		return false, err
	}
	if err := driver.SetValue(loginCtx, a.selectors.CaptchaField, captchaText); err != nil {
		return false, err
	}
	if err := driver.Click(loginCtx, a.selectors.SubmitButton); err != nil {
		return false, err
	}

	if err := driver.Sleep(loginCtx, loginSettleWait); err != nil {
		return false, err
	}

	loggedIn, err := a.IsLoggedIn(loginCtx, driver)
	if err != nil {
		return false, err
	}

	if loggedIn {
		a.logger.Info().Str("company", a.creds.Company).Msg("Portal login succeeded")
	} else {
		a.logger.Warn().Str("company", a.creds.Company).Msg("Portal login rejected")
	}

	return loggedIn, nil
}
