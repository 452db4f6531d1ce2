package browser

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Browser is a running browser instance able to open pages.
type Browser interface {
	// NewPage opens a new tab. The caller owns the page and must close it.
	NewPage(ctx context.Context) (Page, error)

	// Close shuts the browser down along with any pages still open
	Close() error
}

// Page is a single browser tab and the primitives the dispatcher drives.
type Page interface {
	// Goto navigates to an absolute URL and waits for the given lifecycle event
	Goto(ctx context.Context, url string, waitUntil WaitUntil) error

	// Click clicks the first element matching selector
	Click(ctx context.Context, selector string) error

	// WaitForNavigation arms a wait for the next main-frame navigation and
	// returns a function that blocks until it has reached waitUntil. Arming
	// happens before WaitForNavigation returns, so a navigation triggered
	// right afterwards is not missed.
	WaitForNavigation(ctx context.Context, waitUntil WaitUntil) func() error

	// Type focuses the element matching selector and types text into it,
	// pausing delay between keystrokes
	Type(ctx context.Context, selector, text string, delay time.Duration) error

	// URL returns the current page URL
	URL(ctx context.Context) (string, error)

	// OuterHTML returns the outer HTML of the first element matching selector.
	// found is false when nothing matched.
	OuterHTML(ctx context.Context, selector string) (html string, found bool, err error)

	// OuterHTMLAll returns the outer HTML of every element matching selector
	// in document order
	OuterHTMLAll(ctx context.Context, selector string) ([]string, error)

	// SetViewport resizes the page viewport
	SetViewport(ctx context.Context, viewport Viewport) error

	// Close closes the tab
	Close() error
}

// Provider lends browsers out for the duration of one unit of work.
type Provider interface {
	// Borrow returns a browser, blocking while none is available
	Borrow(ctx context.Context) (Browser, error)

	// Release returns a borrowed browser to the provider
	Release(b Browser) error
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width             int     `json:"width" yaml:"width"`
	Height            int     `json:"height" yaml:"height"`
	DeviceScaleFactor float64 `json:"deviceScaleFactor,omitempty" yaml:"device_scale_factor,omitempty"`
	Mobile            bool    `json:"mobile,omitempty" yaml:"mobile,omitempty"`
}

// Validate checks that both dimensions are positive.
func (v Viewport) Validate() error {
	if v.Width <= 0 || v.Height <= 0 {
		return fmt.Errorf("invalid viewport %dx%d: dimensions must be positive", v.Width, v.Height)
	}
	return nil
}

// WaitUntil specifies when to consider a navigation finished.
type WaitUntil string

const (
	// WaitUntilLoad waits for the load event (default)
	WaitUntilLoad WaitUntil = "load"

	// WaitUntilDOMContentLoaded waits for the DOMContentLoaded event
	WaitUntilDOMContentLoaded WaitUntil = "domcontentloaded"

	// WaitUntilNetworkIdle waits until there are no network connections
	WaitUntilNetworkIdle WaitUntil = "networkidle"
)

// ParseWaitUntil parses a lifecycle condition. An empty string yields
// WaitUntilLoad. The puppeteer spellings networkidle0 and networkidle2 are
// accepted as WaitUntilNetworkIdle.
func ParseWaitUntil(s string) (WaitUntil, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "load":
		return WaitUntilLoad, nil
	case "domcontentloaded":
		return WaitUntilDOMContentLoaded, nil
	case "networkidle", "networkidle0", "networkidle2":
		return WaitUntilNetworkIdle, nil
	default:
		return "", fmt.Errorf("unsupported wait condition %q (must be load, domcontentloaded or networkidle)", s)
	}
}

// Default values shared by the backends
const (
	DefaultTimeout        = 30 * time.Second
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
)
