package agent

import (
	"context"

	"github.com/entrhq/browsary/pkg/browser"
)

// FunctionCall executes a named tool call against page. (*Agent).Dispatch
// is the FunctionCall handed to providers by CreateContext.
type FunctionCall func(ctx context.Context, page browser.Page, name string, params map[string]any) (any, error)

// Provider is an AI evaluation layer that works a task on a page by issuing
// tool calls through the FunctionCall it was constructed with.
type Provider interface {
	Run(ctx context.Context, page browser.Page, task string) (string, error)
}

// EvaluationContext pairs a provider with the agent that serves its calls.
type EvaluationContext[P Provider] struct {
	Provider P
	Agent    *Agent
}

// CreateContext constructs a provider from cfg, handing it the agent's
// dispatcher as its function-call callback.
func CreateContext[C any, P Provider](a *Agent, newProvider func(cfg C, call FunctionCall) P, cfg C) *EvaluationContext[P] {
	return &EvaluationContext[P]{
		Provider: newProvider(cfg, a.Dispatch),
		Agent:    a,
	}
}

// Run works task on a fresh page in a new session.
func (e *EvaluationContext[P]) Run(ctx context.Context, task string) (string, error) {
	return Evaluate(ctx, e.Agent, func(ctx context.Context, page browser.Page) (string, error) {
		return e.Provider.Run(ctx, page, task)
	})
}
