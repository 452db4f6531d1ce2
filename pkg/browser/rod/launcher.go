// Package rod implements the browser contracts over go-rod.
//
// The Launcher starts a local Chromium through rod's launcher, connects to
// it over the DevTools protocol and opens every page in its own incognito
// context. Stealth pages patch the usual headless fingerprints.
//
// Example usage:
//
//	l := rod.NewLauncher(rod.WithHeadless(true), rod.WithStealth(true))
//	p := pool.New(l, pool.WithCapacity(4))
//	defer p.Close()
package rod

import (
	"context"
	"fmt"
	"sync"
	"time"

	gorod "github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/entrhq/browsary/pkg/browser"
	"github.com/entrhq/browsary/pkg/logging"
)

// Launcher starts Chromium instances. It satisfies pool.Launcher.
type Launcher struct {
	bin        string
	controlURL string
	headless   bool
	stealth    bool
	noSandbox  bool
	viewport   browser.Viewport
	timeout    time.Duration
	logger     *logging.Logger
}

// LauncherOption configures a Launcher.
type LauncherOption func(*Launcher)

// WithBin sets the browser executable. By default rod finds or downloads one.
func WithBin(path string) LauncherOption {
	return func(l *Launcher) {
		l.bin = path
	}
}

// WithControlURL connects to an already running browser instead of
// launching one. Such a browser is left running by Close.
func WithControlURL(u string) LauncherOption {
	return func(l *Launcher) {
		l.controlURL = u
	}
}

// WithHeadless controls whether browsers run without a visible window.
func WithHeadless(headless bool) LauncherOption {
	return func(l *Launcher) {
		l.headless = headless
	}
}

// WithStealth opens pages with the stealth evasions applied.
func WithStealth(enabled bool) LauncherOption {
	return func(l *Launcher) {
		l.stealth = enabled
	}
}

// WithNoSandbox disables the Chromium sandbox, needed when running as root
// in containers.
func WithNoSandbox() LauncherOption {
	return func(l *Launcher) {
		l.noSandbox = true
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

// NewLauncher creates a launcher for headless Chromium.
func NewLauncher(opts ...LauncherOption) *Launcher {
	l := &Launcher{
		headless: true,
		viewport: browser.Viewport{
			Width:  browser.DefaultViewportWidth,
			Height: browser.DefaultViewportHeight,
		},
		timeout: browser.DefaultTimeout,
		logger:  logging.Discard("rod"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Launcher) newProcess() *launcher.Launcher {
	lc := launcher.New().
		Headless(l.headless).
		Set("disable-dev-shm-usage")
	if l.bin != "" {
		lc = lc.Bin(l.bin)
	}
	if l.stealth {
		lc = lc.Set("disable-blink-features", "AutomationControlled")
	}
	if l.noSandbox {
		lc = lc.Set("no-sandbox")
	}
	return lc
}

// Launch starts a browser, or connects to the configured one. The browser
// is not bound to ctx and outlives it.
func (l *Launcher) Launch(ctx context.Context) (browser.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	controlURL := l.controlURL
	var process *launcher.Launcher
	if controlURL == "" {
		process = l.newProcess()
		u, err := process.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		controlURL = u
	}

	rb := gorod.New().ControlURL(controlURL)
	if err := rb.Connect(); err != nil {
		if process != nil {
			process.Kill()
		}
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	l.logger.Infof("Connected to browser at %s (headless=%t, stealth=%t)", controlURL, l.headless, l.stealth)
	return &Browser{
		browser:  rb,
		process:  process,
		stealth:  l.stealth,
		viewport: l.viewport,
		timeout:  l.timeout,
		logger:   l.logger,
	}, nil
}

// Browser adapts a rod browser to browser.Browser.
type Browser struct {
	browser  *gorod.Browser
	process  *launcher.Launcher
	stealth  bool
	viewport browser.Viewport
	timeout  time.Duration
	logger   *logging.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewPage opens a page in a fresh incognito context.
func (b *Browser) NewPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	incognito, err := b.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	var rp *gorod.Page
	if b.stealth {
		rp, err = stealth.Page(incognito)
	} else {
		rp, err = incognito.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		incognito.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	page := &Page{page: rp, context: incognito, timeout: b.timeout, logger: b.logger}
	if err := page.SetViewport(ctx, b.viewport); err != nil {
		page.Close()
		return nil, err
	}
	return page, nil
}

// Close stops a browser this launcher started. External browsers are not
// closed.
func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		if b.process == nil {
			b.logger.Debugf("Leaving external browser running")
			return
		}
		if err := b.browser.Close(); err != nil {
			b.closeErr = fmt.Errorf("failed to close browser: %w", err)
		}
		b.process.Kill()
		b.process.Cleanup()
	})
	return b.closeErr
}

var _ browser.Browser = (*Browser)(nil)
