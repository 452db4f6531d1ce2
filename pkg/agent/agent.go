// Package agent executes AI tool calls against a live browser page.
//
// An Agent owns a browser source and runs units of work inside a session:
// Evaluate acquires a browser, opens a page, runs the work and always closes
// the page and returns the browser afterwards. Inside a session, Dispatch
// maps tool-call names onto page primitives:
//
//	a := agent.New(agent.Config{Source: browser.FromProvider(pool)})
//	title, err := agent.Evaluate(ctx, a, func(ctx context.Context, page browser.Page) (any, error) {
//		if _, err := a.Dispatch(ctx, page, "goto", map[string]any{"url": "https://example.com"}); err != nil {
//			return nil, err
//		}
//		return a.Dispatch(ctx, page, "querySelector", map[string]any{"selector": "h1"})
//	})
//
// AI providers that plan their own actions are wired with CreateContext.
package agent

import (
	"github.com/entrhq/browsary/pkg/browser"
	"github.com/entrhq/browsary/pkg/dom"
	"github.com/entrhq/browsary/pkg/logging"
	"github.com/entrhq/browsary/pkg/security/urlpolicy"
)

// Config is the immutable configuration of an Agent.
type Config struct {
	// Source is where browsers come from for each session
	Source browser.Source

	// Viewport, when set, is applied to every page before work runs
	Viewport *browser.Viewport
}

// Agent runs sessions against its configured browser source. It holds no
// per-session state and is safe for concurrent use.
type Agent struct {
	source   browser.Source
	viewport *browser.Viewport
	pipeline *dom.Pipeline
	policy   *urlpolicy.Policy
	logger   *logging.Logger
}

// Option is a function that configures an agent
type Option func(*Agent)

// WithLogger sets the logger used for session and dispatch events
func WithLogger(l *logging.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithPipeline replaces the DOM pipeline used by the query actions
func WithPipeline(p *dom.Pipeline) Option {
	return func(a *Agent) {
		if p != nil {
			a.pipeline = p
		}
	}
}

// WithNavigationPolicy restricts which hosts goto may reach
func WithNavigationPolicy(p *urlpolicy.Policy) Option {
	return func(a *Agent) {
		a.policy = p
	}
}

// New creates an agent for cfg.
func New(cfg Config, opts ...Option) *Agent {
	a := &Agent{
		source:   cfg.Source,
		pipeline: dom.NewPipeline(),
		logger:   logging.Discard("agent"),
	}
	if cfg.Viewport != nil {
		v := *cfg.Viewport
		a.viewport = &v
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Source returns the browser source the agent draws from.
func (a *Agent) Source() browser.Source {
	return a.source
}
