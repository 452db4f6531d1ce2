package agent

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/entrhq/browsary/pkg/browser"
)

// Dispatch decodes a tool call and executes it against page.
//
// Query actions return a dom.Node (dom.Empty when nothing matched), url
// returns the page URL as a string and the remaining actions return nil.
// Decoding failures are reported before any primitive is touched.
func (a *Agent) Dispatch(ctx context.Context, page browser.Page, name string, params map[string]any) (any, error) {
	action, err := Decode(name, params)
	if err != nil {
		a.logger.Warnf("rejected tool call %q: %v", name, err)
		return nil, err
	}
	return a.Execute(ctx, page, action)
}

// Execute runs an already decoded action against page.
func (a *Agent) Execute(ctx context.Context, page browser.Page, action Action) (any, error) {
	start := time.Now()
	result, err := action.execute(ctx, a, page)
	if err != nil {
		a.logger.Warnf("%s failed after %s: %v", action.Name(), time.Since(start), err)
		return nil, err
	}
	a.logger.Debugf("%s completed in %s", action.Name(), time.Since(start))
	return result, nil
}

func (q QuerySelector) execute(ctx context.Context, a *Agent, page browser.Page) (any, error) {
	fragment, found, err := page.OuterHTML(ctx, q.Selector)
	if err != nil {
		return nil, err
	}
	if !found {
		return a.extract("")
	}
	return a.extract(fragment)
}

func (q QuerySelectorAll) execute(ctx context.Context, a *Agent, page browser.Page) (any, error) {
	fragments, err := page.OuterHTMLAll(ctx, q.Selector)
	if err != nil {
		return nil, err
	}
	return a.extractAll(fragments)
}

func (g Goto) execute(ctx context.Context, a *Agent, page browser.Page) (any, error) {
	current, err := page.URL(ctx)
	if err != nil {
		return nil, err
	}
	target, err := resolveURL(current, g.URL)
	if err != nil {
		return nil, &ParamError{Action: ActionGoto, Param: "url", Reason: err.Error()}
	}

	if a.policy != nil {
		if err := a.policy.Check(target); err != nil {
			return nil, err
		}
	}

	until := g.WaitUntil
	if until == "" {
		until = browser.WaitUntilLoad
	}
	if err := page.Goto(ctx, target.String(), until); err != nil {
		return nil, err
	}
	return nil, nil
}

// resolveURL resolves ref against base. An unparseable base leaves ref as is.
func resolveURL(base, ref string) (*url.URL, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", ref, err)
	}
	b, err := url.Parse(base)
	if err != nil || base == "" {
		return r, nil
	}
	return b.ResolveReference(r), nil
}

func (c Click) execute(ctx context.Context, _ *Agent, page browser.Page) (any, error) {
	if !c.WaitForNavigation {
		return nil, page.Click(ctx, c.Selector)
	}

	g, gctx := errgroup.WithContext(ctx)

	// Arm before clicking so the navigation cannot slip past the wait
	wait := page.WaitForNavigation(gctx, browser.WaitUntilLoad)
	g.Go(wait)
	g.Go(func() error {
		return page.Click(gctx, c.Selector)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return nil, nil
}

func (t Type) execute(ctx context.Context, _ *Agent, page browser.Page) (any, error) {
	return nil, page.Type(ctx, t.Selector, t.Text, t.Delay)
}

func (CurrentURL) execute(ctx context.Context, _ *Agent, page browser.Page) (any, error) {
	return page.URL(ctx)
}
