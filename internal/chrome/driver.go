// Package chrome drives headless Chrome through chromedp to turn an HTML
// document into a PNG screenshot.
package chrome

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	u "ogimage/internal/utils"
)

const defaultAcquireTimeout = 5 * time.Second

// Screenshotter renders an HTML document to PNG bytes.
type Screenshotter interface {
	Screenshot(ctx context.Context, html string) ([]byte, error)
}

// Driver launches a browser per call, or leases tabs from a Pool when
// chrome.pool_size is positive.
type Driver struct {
	cfg      u.Config
	resolver ExecPathResolver

	// acquireTimeout bounds the wait for a free pooled tab.
	acquireTimeout time.Duration

	mu      sync.Mutex
	pool    *Pool
	poolErr error
}

// NewDriver returns a Driver. A nil resolver is built from cfg.Chrome.
func NewDriver(cfg u.Config, resolver ExecPathResolver) *Driver {
	if resolver == nil {
		resolver = ResolverFromConfig(cfg.Chrome)
	}
	return &Driver{cfg: cfg, resolver: resolver, acquireTimeout: defaultAcquireTimeout}
}

func (d *Driver) timeout() time.Duration {
	if d.cfg.Chrome.TimeoutSecs <= 0 {
		return 15 * time.Second
	}
	return time.Duration(d.cfg.Chrome.TimeoutSecs) * time.Second
}

func (d *Driver) getPool() (*Pool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cfg.Chrome.PoolSize <= 0 {
		return nil, nil
	}
	if d.pool != nil {
		return d.pool, nil
	}
	execPath, err := d.resolver.ExecPath()
	if err != nil {
		d.poolErr = err
		return nil, err
	}
	pool, err := NewPool(d.cfg, execPath)
	if err != nil {
		d.poolErr = err
		return nil, err
	}
	d.pool = pool
	d.poolErr = nil
	return d.pool, nil
}

// Screenshot renders html and returns PNG bytes.
func (d *Driver) Screenshot(ctx context.Context, html string) ([]byte, error) {
	pool, err := d.getPool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		execPath, err := d.resolver.ExecPath()
		if err != nil {
			return nil, err
		}
		return screenshotWithNewBrowser(ctx, html, d.cfg.Chrome, execPath, d.timeout())
	}

	buf, renderErr, err := d.renderPooled(ctx, pool, html)
	if err != nil {
		// A busy pool is not a broken browser.
		return nil, err
	}
	if renderErr != nil && ctx.Err() == nil && IsSessionInterrupted(renderErr) {
		u.Warn("Chrome session interrupted; restarting pool and retrying once", "error", renderErr)
		if err := pool.Restart(); err != nil {
			return nil, err
		}
		buf, renderErr, err = d.renderPooled(ctx, pool, html)
		if err != nil {
			return nil, err
		}
	}
	return buf, renderErr
}

// renderPooled leases a tab and renders html in it. acquireErr is set when
// no tab could be leased; renderErr when the render itself failed.
func (d *Driver) renderPooled(ctx context.Context, pool *Pool, html string) (buf []byte, renderErr, acquireErr error) {
	acquireCtx, acquireCancel := context.WithTimeout(ctx, d.acquireTimeout)
	defer acquireCancel()

	tab, err := pool.Acquire(acquireCtx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire chrome tab: %w", err)
	}

	renderCtx, cancel := context.WithTimeout(tab.Ctx, d.timeout())
	stop := context.AfterFunc(ctx, cancel)
	buf, renderErr = captureInTab(renderCtx, html, d.cfg.Chrome)
	stop()
	cancel()

	pool.Release(tab, renderErr)
	return buf, renderErr, nil
}

// Stats reports pool usage, or the error the pool failed to start with.
func (d *Driver) Stats() (PoolStats, error) {
	pool, err := d.getPool()
	if err != nil {
		return PoolStats{}, err
	}
	if pool == nil {
		return PoolStats{PoolSizeConf: d.cfg.Chrome.PoolSize, TimeoutSecs: d.cfg.Chrome.TimeoutSecs}, nil
	}
	return pool.Stats(d.cfg.Chrome.TimeoutSecs), nil
}

// Close releases the pool, if any.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pool != nil {
		d.pool.Close()
		d.pool = nil
	}
}

// screenshotWithNewBrowser starts a browser with a throwaway profile, takes
// one screenshot and tears everything down.
func screenshotWithNewBrowser(ctx context.Context, html string, cfg u.ChromeConfig, execPath string, timeout time.Duration) ([]byte, error) {
	profileDir, err := os.MkdirTemp(cfg.UserDataDir, "ogimage-chrome-*")
	if err != nil {
		return nil, fmt.Errorf("cannot create temp profile dir: %w", err)
	}
	defer os.RemoveAll(profileDir)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(cfg, execPath, profileDir)...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	renderCtx, cancel := context.WithTimeout(browserCtx, timeout)
	defer cancel()

	return captureInTab(renderCtx, html, cfg)
}

// captureInTab loads html into the tab behind ctx and captures the viewport.
func captureInTab(ctx context.Context, html string, cfg u.ChromeConfig) ([]byte, error) {
	var buf []byte
	actions := []chromedp.Action{
		chromedp.EmulateViewport(int64(cfg.Width), int64(cfg.Height)),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frame, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frame.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if cfg.WaitForFonts {
		var fontsReady bool
		actions = append(actions,
			chromedp.Evaluate(`document.fonts.ready.then(() => true)`, &fontsReady,
				func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
					return p.WithAwaitPromise(true)
				}),
		)
	}
	actions = append(actions,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return waitForRenderReady(ctx, 50*time.Millisecond)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				WithFromSurface(true).
				Do(ctx)
			return err
		}),
	)

	if err := chromedp.Run(ctx, actions...); err != nil {
		return nil, err
	}
	return buf, nil
}

// waitForRenderReady gives layout one settle period before capture.
func waitForRenderReady(ctx context.Context, settle time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := time.NewTimer(settle)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
