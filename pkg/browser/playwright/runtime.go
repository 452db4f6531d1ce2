// Package playwright implements the browser contracts over playwright-go.
//
// A Runtime owns the playwright driver process. A Launcher started from it
// opens browsers of one engine, and every page runs in its own browser
// context so pages never share cookies or storage.
//
// Example usage:
//
//	rt := playwright.NewRuntime()
//	if err := rt.Start(); err != nil {
//	    return err
//	}
//	defer rt.Stop()
//
//	p := pool.New(playwright.NewLauncher(rt, playwright.WithHeadless(true)))
//	defer p.Close()
package playwright

import (
	"fmt"
	"io"
	"sync"

	pw "github.com/playwright-community/playwright-go"

	"github.com/entrhq/browsary/pkg/logging"
)

// Runtime manages the lifecycle of the playwright driver.
type Runtime struct {
	mu          sync.Mutex
	driver      *pw.Playwright
	runOptions  *pw.RunOptions
	skipInstall bool
	logger      *logging.Logger
	started     bool
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithSkipInstall skips downloading the driver and browsers on Start. Use it
// when they are provisioned ahead of time.
func WithSkipInstall() RuntimeOption {
	return func(r *Runtime) {
		r.skipInstall = true
	}
}

// WithBrowsers limits the browsers installed on Start, e.g. "chromium".
func WithBrowsers(names ...string) RuntimeOption {
	return func(r *Runtime) {
		r.runOptions.Browsers = names
	}
}

// WithDriverOutput redirects driver installation output.
func WithDriverOutput(w io.Writer) RuntimeOption {
	return func(r *Runtime) {
		if w != nil {
			r.runOptions.Stdout = w
			r.runOptions.Stderr = w
			r.runOptions.Verbose = true
		}
	}
}

// WithRuntimeLogger sets the runtime logger.
func WithRuntimeLogger(l *logging.Logger) RuntimeOption {
	return func(r *Runtime) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRuntime creates a runtime. The driver is not started until Start.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		// Installation is silent unless output is requested
		runOptions: &pw.RunOptions{
			Verbose: false,
			Stdout:  io.Discard,
			Stderr:  io.Discard,
		},
		logger: logging.Discard("playwright"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start installs (unless skipped) and runs the playwright driver. Calling
// Start on a running runtime is a no-op.
func (r *Runtime) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	if !r.skipInstall {
		r.logger.Infof("Installing playwright driver")
		if err := pw.Install(r.runOptions); err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	driver, err := pw.Run(r.runOptions)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	r.driver = driver
	r.started = true
	r.logger.Infof("Playwright driver started")
	return nil
}

// Stop shuts the driver down. Browsers launched from the runtime become
// unusable.
func (r *Runtime) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return nil
	}

	r.started = false
	driver := r.driver
	r.driver = nil
	if err := driver.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	r.logger.Infof("Playwright driver stopped")
	return nil
}

// Running reports whether the driver is started.
func (r *Runtime) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

func (r *Runtime) browserType(engine Engine) (pw.BrowserType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return nil, ErrNotStarted
	}

	switch engine {
	case EngineChromium, "":
		return r.driver.Chromium, nil
	case EngineFirefox:
		return r.driver.Firefox, nil
	case EngineWebKit:
		return r.driver.WebKit, nil
	default:
		return nil, fmt.Errorf("unknown playwright engine %q", engine)
	}
}
