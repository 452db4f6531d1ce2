package playwright

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pw "github.com/playwright-community/playwright-go"

	"github.com/entrhq/browsary/pkg/browser"
	"github.com/entrhq/browsary/pkg/logging"
)

const (
	outerHTMLScript    = `sel => { const el = document.querySelector(sel); return el ? el.outerHTML : null }`
	outerHTMLAllScript = `sel => Array.from(document.querySelectorAll(sel), el => el.outerHTML)`
)

// Page adapts a playwright page to browser.Page. The page owns its browser
// context and closes it along with the page.
type Page struct {
	page    pw.Page
	context pw.BrowserContext
	timeout time.Duration
	logger  *logging.Logger
}

// Goto navigates to url and waits for the given lifecycle event.
func (p *Page) Goto(ctx context.Context, url string, waitUntil browser.WaitUntil) error {
	state := pw.WaitUntilState(loadState(waitUntil))
	timeout := timeoutMillis(ctx, p.timeout)
	if _, err := p.page.Goto(url, pw.PageGotoOptions{
		WaitUntil: &state,
		Timeout:   &timeout,
	}); err != nil {
		return fmt.Errorf("%w: %s: %w", browser.ErrNavigation, url, err)
	}
	p.logger.Debugf("Navigated to %s (%s)", url, waitUntil)
	return nil
}

// Click clicks the first element matching selector.
func (p *Page) Click(ctx context.Context, selector string) error {
	timeout := timeoutMillis(ctx, p.timeout)
	err := p.page.Locator(selector).First().Click(pw.LocatorClickOptions{Timeout: &timeout})
	if err != nil {
		return selectorError("click", selector, err)
	}
	return nil
}

// WaitForNavigation arms a listener for the next main-frame navigation. The
// returned function waits for it and then for waitUntil on the new document.
func (p *Page) WaitForNavigation(ctx context.Context, waitUntil browser.WaitUntil) func() error {
	navigated := make(chan struct{})
	var once sync.Once
	mainFrame := p.page.MainFrame()
	handler := func(f pw.Frame) {
		if f == mainFrame {
			once.Do(func() { close(navigated) })
		}
	}
	p.page.On("framenavigated", handler)

	return func() error {
		defer p.page.RemoveListener("framenavigated", handler)

		timer := time.NewTimer(p.timeout)
		defer timer.Stop()

		select {
		case <-navigated:
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("%w: no navigation within %s", browser.ErrNavigation, p.timeout)
		}

		state := pw.LoadState(loadState(waitUntil))
		timeout := timeoutMillis(ctx, p.timeout)
		if err := p.page.WaitForLoadState(pw.PageWaitForLoadStateOptions{
			State:   &state,
			Timeout: &timeout,
		}); err != nil {
			return fmt.Errorf("%w: waiting for %s: %w", browser.ErrNavigation, waitUntil, err)
		}
		return nil
	}
}

// Type types text into the element matching selector one key at a time.
func (p *Page) Type(ctx context.Context, selector, text string, delay time.Duration) error {
	timeout := timeoutMillis(ctx, p.timeout)
	opts := pw.LocatorPressSequentiallyOptions{Timeout: &timeout}
	if delay > 0 {
		opts.Delay = pw.Float(float64(delay.Milliseconds()))
	}

	if err := p.page.Locator(selector).First().PressSequentially(text, opts); err != nil {
		if errors.Is(err, pw.ErrTimeout) {
			return selectorError("type", selector, err)
		}
		return fmt.Errorf("%w: %s: %w", browser.ErrInput, selector, err)
	}
	return nil
}

// URL returns the current page URL.
func (p *Page) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.URL(), nil
}

// OuterHTML returns the outer HTML of the first element matching selector.
func (p *Page) OuterHTML(ctx context.Context, selector string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	result, err := p.page.Evaluate(outerHTMLScript, selector)
	if err != nil {
		return "", false, fmt.Errorf("failed to query %s: %w", selector, err)
	}
	html, ok := result.(string)
	if !ok {
		return "", false, nil
	}
	return html, true, nil
}

// OuterHTMLAll returns the outer HTML of every element matching selector.
func (p *Page) OuterHTMLAll(ctx context.Context, selector string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := p.page.Evaluate(outerHTMLAllScript, selector)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", selector, err)
	}
	return toStrings(result), nil
}

// SetViewport resizes the page. Scale factor and mobile emulation are fixed
// when the page's context is created and are not changed here.
func (p *Page) SetViewport(ctx context.Context, v browser.Viewport) error {
	if err := v.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.page.SetViewportSize(v.Width, v.Height); err != nil {
		return fmt.Errorf("failed to set viewport: %w", err)
	}
	return nil
}

// Close closes the page and its browser context.
func (p *Page) Close() error {
	var errs []error
	if err := p.page.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close page: %w", err))
	}
	if err := p.context.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close context: %w", err))
	}
	return errors.Join(errs...)
}

func loadState(w browser.WaitUntil) string {
	switch w {
	case browser.WaitUntilDOMContentLoaded, browser.WaitUntilNetworkIdle:
		return string(w)
	default:
		return string(browser.WaitUntilLoad)
	}
}

// timeoutMillis bounds the default timeout by the context deadline.
func timeoutMillis(ctx context.Context, def time.Duration) float64 {
	d := def
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < d {
			d = remaining
		}
	}
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return float64(d.Milliseconds())
}

// selectorError classifies a locator failure. Locators wait for their
// element, so a timeout means nothing matched.
func selectorError(action, selector string, err error) error {
	if errors.Is(err, pw.ErrTimeout) {
		return fmt.Errorf("%w: %s: %w", browser.ErrSelectorNotFound, selector, err)
	}
	return fmt.Errorf("%s %s failed: %w", action, selector, err)
}

func toStrings(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

var _ browser.Page = (*Page)(nil)
