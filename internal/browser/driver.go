package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
)

// chromeDriver wraps one Chrome instance behind the Driver interface. Every
// operation races the caller's context against the browser context so a
// cancelled job aborts pending CDP calls instead of blocking on them.
type chromeDriver struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	logger        arbor.ILogger

	shutdownOnce sync.Once
}

// run executes chromedp actions on the browser context while observing the
// caller's context for cancellation and deadlines.
func (d *chromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(d.browserCtx)
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		// Prefer the caller's error when the abort came from their context
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (d *chromeDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

func (d *chromeDriver) Find(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	if err := d.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

func (d *chromeDriver) SetValue(ctx context.Context, selector, value string) error {
	return d.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, value, chromedp.ByQuery),
	)
}

func (d *chromeDriver) Click(ctx context.Context, selector string) error {
	return d.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (d *chromeDriver) Text(ctx context.Context, selector string) (string, error) {
	var out string
	if err := d.run(ctx, chromedp.Text(selector, &out, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return out, nil
}

func (d *chromeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *chromeDriver) ScreenshotElement(ctx context.Context, selector string) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.Screenshot(selector, &buf, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *chromeDriver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := d.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

func (d *chromeDriver) Sleep(ctx context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown releases the browser. A graceful chromedp.Cancel is attempted
// first; contexts are cancelled regardless.
func (d *chromeDriver) Shutdown() error {
	d.shutdownOnce.Do(func() {
		done := make(chan struct{})
		go func() {
			_ = chromedp.Cancel(d.browserCtx)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			d.logger.Warn().Msg("Graceful browser shutdown timed out, forcing cancel")
		}
		d.browserCancel()
		d.allocCancel()
	})
	return nil
}
