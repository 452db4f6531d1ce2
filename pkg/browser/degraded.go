package browser

import (
	"context"
	"time"
)

// NoPage is handed to work functions when no browser could be obtained.
var NoPage Page = degradedPage{}

// IsDegraded reports whether p is the degraded-mode placeholder.
func IsDegraded(p Page) bool {
	_, ok := p.(degradedPage)
	return ok || p == nil
}

type degradedPage struct{}

func (degradedPage) Goto(context.Context, string, WaitUntil) error { return ErrNoBrowser }

func (degradedPage) Click(context.Context, string) error { return ErrNoBrowser }

func (degradedPage) WaitForNavigation(context.Context, WaitUntil) func() error {
	return func() error { return ErrNoBrowser }
}

func (degradedPage) Type(context.Context, string, string, time.Duration) error {
	return ErrNoBrowser
}

func (degradedPage) URL(context.Context) (string, error) { return "", ErrNoBrowser }

func (degradedPage) OuterHTML(context.Context, string) (string, bool, error) {
	return "", false, ErrNoBrowser
}

func (degradedPage) OuterHTMLAll(context.Context, string) ([]string, error) {
	return nil, ErrNoBrowser
}

func (degradedPage) SetViewport(context.Context, Viewport) error { return ErrNoBrowser }

// Close is a no-op; there is nothing to release.
func (degradedPage) Close() error { return nil }
