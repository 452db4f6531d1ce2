package rod

import (
	"context"
	"errors"
	"fmt"
	"time"

	gorod "github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/entrhq/browsary/pkg/browser"
	"github.com/entrhq/browsary/pkg/logging"
)

// Page adapts a rod page to browser.Page. The page owns its incognito
// context and disposes it on Close.
type Page struct {
	page    *gorod.Page
	context *gorod.Browser
	timeout time.Duration
	logger  *logging.Logger
}

// bounded returns the page bound to ctx and the default timeout.
func (p *Page) bounded(ctx context.Context) (*gorod.Page, context.CancelFunc) {
	tctx, cancel := context.WithTimeout(ctx, p.timeout)
	return p.page.Context(tctx), cancel
}

// Goto navigates to url and waits for the given lifecycle event.
func (p *Page) Goto(ctx context.Context, url string, waitUntil browser.WaitUntil) error {
	page, cancel := p.bounded(ctx)
	defer cancel()

	wait := page.WaitNavigation(lifecycleEvent(waitUntil))
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("%w: %s: %w", browser.ErrNavigation, url, err)
	}
	wait()

	if err := page.GetContext().Err(); err != nil {
		return fmt.Errorf("%w: %s: waiting for %s: %w", browser.ErrNavigation, url, waitUntil, err)
	}
	p.logger.Debugf("Navigated to %s (%s)", url, waitUntil)
	return nil
}

// Click clicks the first element matching selector, waiting for it to
// appear.
func (p *Page) Click(ctx context.Context, selector string) error {
	page, cancel := p.bounded(ctx)
	defer cancel()

	el, err := page.Element(selector)
	if err != nil {
		return elementError(ctx, selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s failed: %w", selector, err)
	}
	return nil
}

// WaitForNavigation arms a wait for the next lifecycle event named by
// waitUntil. The returned function blocks until it fires.
func (p *Page) WaitForNavigation(ctx context.Context, waitUntil browser.WaitUntil) func() error {
	page, cancel := p.bounded(ctx)
	wait := page.WaitNavigation(lifecycleEvent(waitUntil))

	return func() error {
		defer cancel()
		wait()

		if err := ctx.Err(); err != nil {
			return err
		}
		if err := page.GetContext().Err(); err != nil {
			return fmt.Errorf("%w: no navigation within %s", browser.ErrNavigation, p.timeout)
		}
		return nil
	}
}

// Type types text into the element matching selector. With a delay every
// character is inserted separately.
func (p *Page) Type(ctx context.Context, selector, text string, delay time.Duration) error {
	page, cancel := p.bounded(ctx)
	defer cancel()

	el, err := page.Element(selector)
	if err != nil {
		return elementError(ctx, selector, err)
	}

	if delay <= 0 {
		if err := el.Input(text); err != nil {
			return fmt.Errorf("%w: %s: %w", browser.ErrInput, selector, err)
		}
		return nil
	}

	if err := el.Focus(); err != nil {
		return fmt.Errorf("%w: %s: %w", browser.ErrInput, selector, err)
	}
	for i, r := range []rune(text) {
		if i > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := page.InsertText(string(r)); err != nil {
			return fmt.Errorf("%w: %s: %w", browser.ErrInput, selector, err)
		}
	}
	return nil
}

// URL returns the current page URL.
func (p *Page) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("failed to read page info: %w", err)
	}
	return info.URL, nil
}

// OuterHTML returns the outer HTML of the first element matching selector.
func (p *Page) OuterHTML(ctx context.Context, selector string) (string, bool, error) {
	has, el, err := p.page.Context(ctx).Has(selector)
	if err != nil {
		return "", false, fmt.Errorf("failed to query %s: %w", selector, err)
	}
	if !has {
		return "", false, nil
	}
	html, err := el.HTML()
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", selector, err)
	}
	return html, true, nil
}

// OuterHTMLAll returns the outer HTML of every element matching selector.
func (p *Page) OuterHTMLAll(ctx context.Context, selector string) ([]string, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", selector, err)
	}

	out := make([]string, 0, len(els))
	for _, el := range els {
		html, err := el.HTML()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", selector, err)
		}
		out = append(out, html)
	}
	return out, nil
}

// SetViewport overrides the device metrics of the page.
func (p *Page) SetViewport(ctx context.Context, v browser.Viewport) error {
	if err := v.Validate(); err != nil {
		return err
	}
	scale := v.DeviceScaleFactor
	if scale <= 0 {
		scale = 1
	}
	if err := p.page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             v.Width,
		Height:            v.Height,
		DeviceScaleFactor: scale,
		Mobile:            v.Mobile,
	}); err != nil {
		return fmt.Errorf("failed to set viewport: %w", err)
	}
	return nil
}

// Close closes the page and disposes its incognito context.
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

func lifecycleEvent(w browser.WaitUntil) proto.PageLifecycleEventName {
	switch w {
	case browser.WaitUntilDOMContentLoaded:
		return proto.PageLifecycleEventNameDOMContentLoaded
	case browser.WaitUntilNetworkIdle:
		return proto.PageLifecycleEventNameNetworkIdle
	default:
		return proto.PageLifecycleEventNameLoad
	}
}

// elementError classifies a failed element lookup. rod retries until the
// element appears, so running out of time means nothing matched.
func elementError(ctx context.Context, selector string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", browser.ErrSelectorNotFound, selector, err)
	}
	return fmt.Errorf("failed to find %s: %w", selector, err)
}

var _ browser.Page = (*Page)(nil)
