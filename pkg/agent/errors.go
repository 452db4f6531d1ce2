package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAction is returned for a tool call whose name is not a known action.
	ErrInvalidAction = errors.New("invalid function call")

	// ErrInvalidParams is returned when an action's parameters are missing or malformed.
	ErrInvalidParams = errors.New("invalid parameters")
)

// ParamError describes a missing or malformed action parameter.
type ParamError struct {
	Action string
	Param  string
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s: parameter %q %s", e.Action, e.Param, e.Reason)
}

// Unwrap makes errors.Is(err, ErrInvalidParams) hold.
func (e *ParamError) Unwrap() error {
	return ErrInvalidParams
}

// ReleaseError reports a failure while cleaning up a session.
type ReleaseError struct {
	// Op is "close page" or "release browser"
	Op  string
	Err error
}

func (e *ReleaseError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *ReleaseError) Unwrap() error {
	return e.Err
}
