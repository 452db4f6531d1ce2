package playwright

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pw "github.com/playwright-community/playwright-go"

	"github.com/entrhq/browsary/pkg/browser"
	"github.com/entrhq/browsary/pkg/logging"
)

// ErrNotStarted is returned when launching from a runtime that is not running.
var ErrNotStarted = errors.New("playwright runtime not started")

// Engine names a playwright browser engine.
type Engine string

const (
	EngineChromium Engine = "chromium"
	EngineFirefox  Engine = "firefox"
	EngineWebKit   Engine = "webkit"
)

// ParseEngine parses an engine name. An empty name yields EngineChromium.
func ParseEngine(s string) (Engine, error) {
	switch e := Engine(strings.ToLower(strings.TrimSpace(s))); e {
	case "":
		return EngineChromium, nil
	case EngineChromium, EngineFirefox, EngineWebKit:
		return e, nil
	default:
		return "", fmt.Errorf("unknown playwright engine %q (must be chromium, firefox or webkit)", s)
	}
}

// Launcher starts browsers from a Runtime. It satisfies pool.Launcher.
type Launcher struct {
	runtime  *Runtime
	engine   Engine
	headless bool
	viewport browser.Viewport
	timeout  time.Duration
	logger   *logging.Logger
}

// LauncherOption configures a Launcher.
type LauncherOption func(*Launcher)

// WithEngine selects the browser engine.
func WithEngine(e Engine) LauncherOption {
	return func(l *Launcher) {
		if e != "" {
			l.engine = e
		}
	}
}

// WithHeadless controls whether browsers run without a visible window.
func WithHeadless(headless bool) LauncherOption {
	return func(l *Launcher) {
		l.headless = headless
	}
}

// WithViewport sets the viewport of every new page.
func WithViewport(v browser.Viewport) LauncherOption {
	return func(l *Launcher) {
		if v.Validate() == nil {
			l.viewport = v
		}
	}
}

// WithTimeout sets the default timeout of page operations.
func WithTimeout(d time.Duration) LauncherOption {
	return func(l *Launcher) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithLogger sets the launcher logger. It is shared with launched browsers.
func WithLogger(lg *logging.Logger) LauncherOption {
	return func(l *Launcher) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// NewLauncher creates a launcher for rt. Browsers are headless chromium
// unless configured otherwise.
func NewLauncher(rt *Runtime, opts ...LauncherOption) *Launcher {
	l := &Launcher{
		runtime:  rt,
		engine:   EngineChromium,
		headless: true,
		viewport: browser.Viewport{
			Width:  browser.DefaultViewportWidth,
			Height: browser.DefaultViewportHeight,
		},
		timeout: browser.DefaultTimeout,
		logger:  logging.Discard("playwright"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Launch starts a new browser.
func (l *Launcher) Launch(ctx context.Context) (browser.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bt, err := l.runtime.browserType(l.engine)
	if err != nil {
		return nil, err
	}

	launched, err := bt.Launch(pw.BrowserTypeLaunchOptions{
		Headless: &l.headless,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch %s: %w", l.engine, err)
	}

	l.logger.Infof("Launched %s (headless=%t, version %s)", l.engine, l.headless, launched.Version())
	return &Browser{
		browser:  launched,
		viewport: l.viewport,
		timeout:  l.timeout,
		logger:   l.logger,
	}, nil
}

// Browser adapts a playwright browser to browser.Browser.
type Browser struct {
	browser  pw.Browser
	viewport browser.Viewport
	timeout  time.Duration
	logger   *logging.Logger
}

// NewPage opens a page in a fresh browser context.
func (b *Browser) NewPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	contextOpts := pw.BrowserNewContextOptions{
		Viewport: &pw.Size{
			Width:  b.viewport.Width,
			Height: b.viewport.Height,
		},
	}
	if b.viewport.DeviceScaleFactor > 0 {
		contextOpts.DeviceScaleFactor = pw.Float(b.viewport.DeviceScaleFactor)
	}
	if b.viewport.Mobile {
		contextOpts.IsMobile = pw.Bool(true)
	}

	bctx, err := b.browser.NewContext(contextOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	page.SetDefaultTimeout(float64(b.timeout.Milliseconds()))
	page.SetDefaultNavigationTimeout(float64(b.timeout.Milliseconds()))

	return &Page{page: page, context: bctx, timeout: b.timeout, logger: b.logger}, nil
}

// Close closes the browser and every page it still has open.
func (b *Browser) Close() error {
	if err := b.browser.Close(); err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

var _ browser.Browser = (*Browser)(nil)
