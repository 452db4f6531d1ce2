package browser

import "errors"

// Errors raised by page primitives. Backends wrap the driver error with one
// of these so callers can classify failures with errors.Is.
var (
	// ErrNavigation indicates a navigation did not complete
	ErrNavigation = errors.New("navigation failed")

	// ErrSelectorNotFound indicates a selector matched no element
	ErrSelectorNotFound = errors.New("selector not found")

	// ErrInput indicates typing into an element failed
	ErrInput = errors.New("input failed")

	// ErrNoBrowser is returned by every primitive in degraded mode
	ErrNoBrowser = errors.New("no browser available")
)
