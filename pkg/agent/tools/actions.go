package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/entrhq/browsary/pkg/agent"
)

// Caller executes a browser action by name on the current page.
type Caller func(ctx context.Context, name string, params map[string]any) (any, error)

// ActionTool exposes one browser action to the model.
type ActionTool struct {
	name        string
	description string
	schema      map[string]interface{}
	call        Caller
}

// Name returns the action name
func (t *ActionTool) Name() string { return t.name }

// Description returns what the action does
func (t *ActionTool) Description() string { return t.description }

// Schema returns the JSON schema of the action parameters
func (t *ActionTool) Schema() map[string]interface{} { return t.schema }

// IsLoopBreaking returns false; actions never end the task
func (t *ActionTool) IsLoopBreaking() bool { return false }

// Execute parses the XML arguments, runs the action and renders its result
// as text for the model.
func (t *ActionTool) Execute(ctx context.Context, argsXML []byte) (string, error) {
	params, err := XMLToMap(argsXML)
	if err != nil {
		return "", fmt.Errorf("invalid arguments for %s: %w", t.name, err)
	}

	result, err := t.call(ctx, t.name, params)
	if err != nil {
		return "", err
	}
	return FormatResult(result)
}

// FormatResult renders an action result for the model. Actions without a
// value report "ok", strings are returned as is and anything else is JSON.
func FormatResult(result any) (string, error) {
	switch r := result.(type) {
	case nil:
		return "ok", nil
	case string:
		return r, nil
	default:
		data, err := json.Marshal(r)
		if err != nil {
			return "", fmt.Errorf("failed to encode result: %w", err)
		}
		return string(data), nil
	}
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

// Actions returns the browser action tools in catalog order, each bound
// to call.
func Actions(call Caller) []Tool {
	selector := stringProp("CSS selector of the target element.")

	defs := []*ActionTool{
		{
			name: agent.ActionQuerySelector,
			description: "Read the first element matching a CSS selector. " +
				"Returns a compact JSON tree of the element, or {} when nothing matches.",
			schema: BaseToolSchema(map[string]interface{}{"selector": selector}, []string{"selector"}),
		},
		{
			name: agent.ActionQuerySelectorAll,
			description: "Read every element matching a CSS selector, in document order. " +
				"Returns a compact JSON tree, or {} when nothing matches.",
			schema: BaseToolSchema(map[string]interface{}{"selector": selector}, []string{"selector"}),
		},
		{
			name:        agent.ActionGoto,
			description: "Navigate to a URL. Relative URLs resolve against the current page.",
			schema: BaseToolSchema(map[string]interface{}{
				"url": stringProp("Absolute or relative URL to open."),
				"waitUntil": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"load", "domcontentloaded", "networkidle"},
					"description": "When to consider navigation finished. Defaults to load.",
				},
			}, []string{"url"}),
		},
		{
			name:        agent.ActionClick,
			description: "Click the first element matching a CSS selector.",
			schema: BaseToolSchema(map[string]interface{}{
				"selector": selector,
				"waitForNavigation": map[string]interface{}{
					"type":        "boolean",
					"description": "Set to true when the click loads a new page, to wait for it.",
				},
			}, []string{"selector"}),
		},
		{
			name:        agent.ActionType,
			description: "Type text into the element matching a CSS selector.",
			schema: BaseToolSchema(map[string]interface{}{
				"selector": selector,
				"text":     stringProp("Text to type."),
				"delayMs": map[string]interface{}{
					"type":        "number",
					"description": "Pause between keystrokes in milliseconds.",
				},
			}, []string{"selector", "text"}),
		},
		{
			name:        agent.ActionURL,
			description: "Return the URL of the current page.",
			schema:      BaseToolSchema(map[string]interface{}{}, nil),
		},
	}

	out := make([]Tool, 0, len(defs))
	for _, d := range defs {
		d.call = call
		out = append(out, d)
	}
	return out
}
