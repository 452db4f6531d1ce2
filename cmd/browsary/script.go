package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/browsary/pkg/agent"
	"github.com/entrhq/browsary/pkg/browser"
)

// Script is a list of actions run in order on one page.
type Script struct {
	Steps []Step `yaml:"steps" json:"steps"`
}

// Step is one tool call of a script.
type Step struct {
	Action string         `yaml:"action" json:"action"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// StepResult records the outcome of one executed step.
type StepResult struct {
	Action string `json:"action"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// loadScript reads a script file. YAML and JSON are both accepted.
func loadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return parseScript(data)
}

func parseScript(data []byte) (*Script, error) {
	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if len(script.Steps) == 0 {
		return nil, errors.New("script has no steps")
	}
	return &script, nil
}

// decode validates every step before any of them touch a page.
func (s *Script) decode() ([]agent.Action, error) {
	actions := make([]agent.Action, 0, len(s.Steps))
	for i, step := range s.Steps {
		action, err := agent.Decode(step.Action, step.Params)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		actions = append(actions, action)
	}
	return actions, nil
}

// runScript executes the script inside a single session. Execution stops at
// the first failing step; the results gathered so far are returned with the
// error.
func runScript(ctx context.Context, a *agent.Agent, script *Script) ([]StepResult, error) {
	actions, err := script.decode()
	if err != nil {
		return nil, err
	}

	results := make([]StepResult, 0, len(actions))
	err = a.Run(ctx, func(ctx context.Context, page browser.Page) error {
		for i, action := range actions {
			result, execErr := a.Execute(ctx, page, action)
			if execErr != nil {
				results = append(results, StepResult{Action: action.Name(), Error: execErr.Error()})
				return fmt.Errorf("step %d (%s): %w", i+1, action.Name(), execErr)
			}
			results = append(results, StepResult{Action: action.Name(), Result: result})
		}
		return nil
	})
	return results, err
}
