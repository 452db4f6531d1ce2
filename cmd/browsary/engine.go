package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/entrhq/browsary/pkg/browser/playwright"
	"github.com/entrhq/browsary/pkg/browser/pool"
	"github.com/entrhq/browsary/pkg/browser/rod"
	"github.com/entrhq/browsary/pkg/config"
	"github.com/entrhq/browsary/pkg/logging"
)

// engine is a browser pool together with whatever runs underneath it.
type engine struct {
	pool    *pool.Pool
	runtime *playwright.Runtime
}

// Close drains the pool and stops the playwright driver, if any.
func (e *engine) Close() error {
	err := e.pool.Close()
	if e.runtime != nil {
		err = errors.Join(err, e.runtime.Stop())
	}
	return err
}

// newLauncher builds the pool launcher for the configured engine.
func newLauncher(cli *CLIConfig, section *config.BrowserSection, logger *logging.Logger) (pool.Launcher, *playwright.Runtime, error) {
	switch section.GetEngine() {
	case config.EnginePlaywright:
		kind, err := playwright.ParseEngine(cli.Browser)
		if err != nil {
			return nil, nil, err
		}

		runtimeOpts := []playwright.RuntimeOption{
			playwright.WithBrowsers(string(kind)),
			playwright.WithRuntimeLogger(logger.WithComponent("playwright")),
		}
		if cli.SkipInstall {
			runtimeOpts = append(runtimeOpts, playwright.WithSkipInstall())
		}
		if cli.Verbose {
			runtimeOpts = append(runtimeOpts, playwright.WithDriverOutput(os.Stderr))
		}

		rt := playwright.NewRuntime(runtimeOpts...)
		launcher := playwright.NewLauncher(rt,
			playwright.WithEngine(kind),
			playwright.WithHeadless(section.IsHeadless()),
			playwright.WithViewport(section.Viewport()),
			playwright.WithTimeout(section.Timeout()),
			playwright.WithLogger(logger.WithComponent("playwright")),
		)
		return launcher, rt, nil

	case config.EngineRod:
		opts := []rod.LauncherOption{
			rod.WithBin(cli.BrowserBin),
			rod.WithControlURL(cli.ControlURL),
			rod.WithHeadless(section.IsHeadless()),
			rod.WithStealth(section.IsStealth()),
			rod.WithViewport(section.Viewport()),
			rod.WithTimeout(section.Timeout()),
			rod.WithLogger(logger.WithComponent("rod")),
		}
		if cli.NoSandbox || os.Geteuid() == 0 {
			opts = append(opts, rod.WithNoSandbox())
		}
		return rod.NewLauncher(opts...), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown engine %q", section.GetEngine())
	}
}

// startEngine starts the driver when the engine needs one and returns a
// pool sized from the browser section. Browsers launch lazily on first
// borrow.
func startEngine(cli *CLIConfig, section *config.BrowserSection, logger *logging.Logger) (*engine, error) {
	launcher, rt, err := newLauncher(cli, section, logger)
	if err != nil {
		return nil, err
	}

	if rt != nil {
		if err := rt.Start(); err != nil {
			return nil, fmt.Errorf("failed to start playwright: %w", err)
		}
	}

	p := pool.New(launcher,
		pool.WithCapacity(section.GetPoolSize()),
		pool.WithLogger(logger.WithComponent("pool")),
	)
	return &engine{pool: p, runtime: rt}, nil
}
