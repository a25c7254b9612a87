// -----------------------------------------------------------------------
// Browser Provider - Chrome launcher bound to a profile directory
// -----------------------------------------------------------------------

package browser

import (
	"context"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/common"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/interfaces"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/models"
)

// Provider launches Chrome instances bound to a profile directory. One
// provider serves both the master session and per-job clones; isolation comes
// entirely from the profile directory each launch is given.
type Provider struct {
	config common.BrowserConfig
	logger arbor.ILogger
}

// NewProvider creates a browser provider
func NewProvider(config common.BrowserConfig, logger arbor.ILogger) *Provider {
	return &Provider{
		config: config,
		logger: logger,
	}
}

// Launch starts a Chrome instance against the given profile and blocks until
// it passes a responsiveness test. The returned driver owns the instance.
func (p *Provider) Launch(ctx context.Context, profile interfaces.ProfileLayout) (interfaces.Driver, error) {
	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profile.UserDataDir),
		chromedp.Flag("profile-directory", profile.ProfileSubdir),
		chromedp.Flag("headless", p.config.Headless),
		chromedp.Flag("disable-gpu", p.config.DisableGPU),
		chromedp.Flag("no-sandbox", p.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-timer-throttling", false),
		chromedp.Flag("disable-backgrounding-occluded-windows", false),
		chromedp.Flag("disable-renderer-backgrounding", false),
		chromedp.UserAgent(p.config.UserAgent),
	)

	// The allocator is rooted in Background so the browser's lifetime is
	// owned by the driver, not by the launching call's context.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	driver := &chromeDriver{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		logger:        p.logger,
	}

	testCtx, testCancel := context.WithTimeout(ctx, p.config.LaunchTimeoutDuration())
	defer testCancel()

	// Startup test: the instance must navigate and answer a title query
	// before it is handed out
	if err := driver.run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		driver.Shutdown()
		return nil, models.NewFailure(models.KindBrowserLaunch, "browser failed startup test", err)
	}
	var title string
	if err := driver.run(testCtx, chromedp.Title(&title)); err != nil {
		driver.Shutdown()
		return nil, models.NewFailure(models.KindBrowserLaunch, "browser failed responsiveness test", err)
	}

	p.logger.Debug().
		Str("user_data_dir", profile.UserDataDir).
		Bool("headless", p.config.Headless).
		Msg("Browser instance launched and tested")

	return driver, nil
}
