package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/browsary/pkg/browser"
)

const (
	opClosePage      = "close page"
	opReleaseBrowser = "release browser"
)

// Evaluate runs work inside a browser session.
//
// It acquires a browser from the agent's source, opens a fresh page, applies
// the configured viewport and calls work. The page is always closed and a
// borrowed browser always returned, including when work fails or panics.
// When no browser is available, work receives browser.NoPage and no cleanup
// happens.
//
// The result of work is returned as is. A work error takes precedence over
// cleanup failures, which are then only logged. Without a work error,
// cleanup failures are returned as *ReleaseError values joined together.
func Evaluate[T any](ctx context.Context, a *Agent, work func(ctx context.Context, page browser.Page) (T, error)) (result T, err error) {
	start := time.Now()

	b, release, err := a.source.Acquire(ctx)
	if err != nil {
		a.logger.Errorf("failed to acquire browser from %s source: %v", a.source.Kind(), err)
		return result, err
	}

	if b == nil {
		a.logger.Warnf("no browser available from %s source, running degraded", a.source.Kind())
		return work(ctx, browser.NoPage)
	}

	var cleanup []error

	// Outer release: runs last, after the page is closed
	defer func() {
		if rerr := release(); rerr != nil {
			cleanup = append(cleanup, &ReleaseError{Op: opReleaseBrowser, Err: rerr})
		}
		err = a.settle(err, cleanup)
		a.logger.Debugf("session finished in %s", time.Since(start))
	}()

	page, err := b.NewPage(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to open page: %w", err)
	}
	a.logger.Debugf("opened page from %s source", a.source.Kind())

	// Inner release
	defer func() {
		if cerr := page.Close(); cerr != nil {
			cleanup = append(cleanup, &ReleaseError{Op: opClosePage, Err: cerr})
		}
	}()

	if a.viewport != nil {
		if err := page.SetViewport(ctx, *a.viewport); err != nil {
			return result, fmt.Errorf("failed to set viewport: %w", err)
		}
	}

	return work(ctx, page)
}

// settle combines the primary error with cleanup failures.
func (a *Agent) settle(primary error, cleanup []error) error {
	if len(cleanup) == 0 {
		return primary
	}
	if primary != nil {
		for _, cerr := range cleanup {
			a.logger.Warnf("session cleanup failed after error %q: %v", primary, cerr)
		}
		return primary
	}
	return errors.Join(cleanup...)
}

// Run is Evaluate for work that returns no value.
func (a *Agent) Run(ctx context.Context, work func(ctx context.Context, page browser.Page) error) error {
	_, err := Evaluate(ctx, a, func(ctx context.Context, page browser.Page) (struct{}, error) {
		return struct{}{}, work(ctx, page)
	})
	return err
}
