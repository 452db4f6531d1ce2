package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/entrhq/browsary/pkg/browser"
)

// Action names accepted by Decode and Dispatch
const (
	ActionQuerySelector    = "querySelector"
	ActionQuerySelectorAll = "querySelectorAll"
	ActionGoto             = "goto"
	ActionClick            = "click"
	ActionType             = "type"
	ActionURL              = "url"
)

// ActionNames lists every action in catalog order.
var ActionNames = []string{
	ActionQuerySelector,
	ActionQuerySelectorAll,
	ActionGoto,
	ActionClick,
	ActionType,
	ActionURL,
}

// Action is a decoded tool call. The set of actions is closed; obtain one
// with Decode or by constructing a variant directly.
type Action interface {
	// Name returns the tool-call name of the action
	Name() string

	execute(ctx context.Context, a *Agent, page browser.Page) (any, error)
}

// QuerySelector extracts the first element matching Selector.
type QuerySelector struct {
	Selector string
}

// QuerySelectorAll extracts every element matching Selector.
type QuerySelectorAll struct {
	Selector string
}

// Goto navigates to URL, which may be relative to the current page.
type Goto struct {
	URL       string
	WaitUntil browser.WaitUntil
}

// Click clicks the first element matching Selector. With WaitForNavigation
// set, it also waits for the navigation the click triggers.
type Click struct {
	Selector          string
	WaitForNavigation bool
}

// Type types Text into the element matching Selector.
type Type struct {
	Selector string
	Text     string
	Delay    time.Duration
}

// CurrentURL reports the page URL.
type CurrentURL struct{}

func (QuerySelector) Name() string    { return ActionQuerySelector }
func (QuerySelectorAll) Name() string { return ActionQuerySelectorAll }
func (Goto) Name() string             { return ActionGoto }
func (Click) Name() string            { return ActionClick }
func (Type) Name() string             { return ActionType }
func (CurrentURL) Name() string       { return ActionURL }

// Decode converts a tool-call request into an Action. Unknown names fail
// with ErrInvalidAction and bad parameters with a *ParamError.
//
// Values are accepted in the loose forms tool calls arrive in: booleans may
// be "true" or "false" strings, numbers may be strings or json.Number.
func Decode(name string, params map[string]any) (Action, error) {
	p := paramReader{action: name, params: params}

	switch name {
	case ActionQuerySelector:
		sel, err := p.requiredString("selector")
		if err != nil {
			return nil, err
		}
		return QuerySelector{Selector: sel}, nil

	case ActionQuerySelectorAll:
		sel, err := p.requiredString("selector")
		if err != nil {
			return nil, err
		}
		return QuerySelectorAll{Selector: sel}, nil

	case ActionGoto:
		u, err := p.requiredString("url")
		if err != nil {
			return nil, err
		}
		raw, err := p.optionalString("waitUntil")
		if err != nil {
			return nil, err
		}
		until, perr := browser.ParseWaitUntil(raw)
		if perr != nil {
			return nil, &ParamError{Action: name, Param: "waitUntil", Reason: perr.Error()}
		}
		return Goto{URL: u, WaitUntil: until}, nil

	case ActionClick:
		sel, err := p.requiredString("selector")
		if err != nil {
			return nil, err
		}
		wait, err := p.optionalBool("waitForNavigation")
		if err != nil {
			return nil, err
		}
		return Click{Selector: sel, WaitForNavigation: wait}, nil

	case ActionType:
		sel, err := p.requiredString("selector")
		if err != nil {
			return nil, err
		}
		text, err := p.requiredText("text")
		if err != nil {
			return nil, err
		}
		ms, err := p.optionalNumber("delayMs")
		if err != nil {
			return nil, err
		}
		delay, err := p.delay("delayMs", ms)
		if err != nil {
			return nil, err
		}
		return Type{Selector: sel, Text: text, Delay: delay}, nil

	case ActionURL:
		return CurrentURL{}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, name)
	}
}

type paramReader struct {
	action string
	params map[string]any
}

func (p paramReader) fail(param, reason string) error {
	return &ParamError{Action: p.action, Param: param, Reason: reason}
}

// requiredString returns a non-blank string parameter with surrounding
// whitespace removed.
func (p paramReader) requiredString(key string) (string, error) {
	v, ok := p.params[key]
	if !ok || v == nil {
		return "", p.fail(key, "is required")
	}
	s, ok := v.(string)
	if !ok {
		return "", p.fail(key, fmt.Sprintf("must be a string, got %T", v))
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", p.fail(key, "must not be empty")
	}
	return s, nil
}

// requiredText returns a string parameter that may be empty but must be present.
func (p paramReader) requiredText(key string) (string, error) {
	v, ok := p.params[key]
	if !ok || v == nil {
		return "", p.fail(key, "is required")
	}
	s, ok := v.(string)
	if !ok {
		return "", p.fail(key, fmt.Sprintf("must be a string, got %T", v))
	}
	return s, nil
}

func (p paramReader) optionalString(key string) (string, error) {
	v, ok := p.params[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", p.fail(key, fmt.Sprintf("must be a string, got %T", v))
	}
	return s, nil
}

func (p paramReader) optionalBool(key string) (bool, error) {
	v, ok := p.params[key]
	if !ok || v == nil {
		return false, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, p.fail(key, fmt.Sprintf("must be a boolean, got %q", b))
		}
		return parsed, nil
	default:
		return false, p.fail(key, fmt.Sprintf("must be a boolean, got %T", v))
	}
}

func (p paramReader) optionalNumber(key string) (float64, error) {
	v, ok := p.params[key]
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, p.fail(key, fmt.Sprintf("must be a number, got %q", n.String()))
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, p.fail(key, fmt.Sprintf("must be a number, got %q", n))
		}
		return f, nil
	default:
		return 0, p.fail(key, fmt.Sprintf("must be a number, got %T", v))
	}
}

// delay converts a millisecond count to a Duration, rejecting values that
// are negative, not finite or beyond the Duration range.
func (p paramReader) delay(key string, ms float64) (time.Duration, error) {
	switch {
	case math.IsNaN(ms) || math.IsInf(ms, 0):
		return 0, p.fail(key, "must be a finite number")
	case ms < 0:
		return 0, p.fail(key, "must not be negative")
	}
	ns := ms * float64(time.Millisecond)
	if ns >= float64(math.MaxInt64) {
		return 0, p.fail(key, fmt.Sprintf("%v is too large", ms))
	}
	return time.Duration(ns), nil
}
