package browser

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// SourceKind identifies which variant a Source holds.
type SourceKind int

const (
	// SourceNone is the zero Source. It never yields a browser.
	SourceNone SourceKind = iota

	// SourceProvider borrows a browser per acquisition and releases it afterwards
	SourceProvider

	// SourceReady holds a caller-owned browser
	SourceReady

	// SourcePending holds a browser that is still being launched
	SourcePending
)

// String returns the variant name.
func (k SourceKind) String() string {
	switch k {
	case SourceProvider:
		return "provider"
	case SourceReady:
		return "ready"
	case SourcePending:
		return "pending"
	default:
		return "none"
	}
}

// Source is where an agent obtains its browser from. Construct one with
// FromProvider, FromBrowser or FromPending.
type Source struct {
	kind     SourceKind
	provider Provider
	ready    Browser
	pending  *Pending
}

// FromProvider returns a Source that borrows from p for every acquisition.
func FromProvider(p Provider) Source {
	return Source{kind: SourceProvider, provider: p}
}

// FromBrowser returns a Source backed by an already running, caller-owned
// browser. A nil browser, including a typed nil pointer, puts every
// acquisition into degraded mode.
func FromBrowser(b Browser) Source {
	if isNil(b) {
		b = nil
	}
	return Source{kind: SourceReady, ready: b}
}

// FromPending returns a Source backed by a browser that is still launching.
func FromPending(p *Pending) Source {
	return Source{kind: SourcePending, pending: p}
}

// Kind reports which variant s holds.
func (s Source) Kind() SourceKind {
	return s.kind
}

// Acquire resolves the source to a browser handle.
//
// The returned release function must be called exactly once when the handle
// is no longer needed. It returns the browser to its provider for
// provider-backed sources and does nothing otherwise. A nil browser with a
// nil error means no handle is available and the caller runs degraded.
func (s Source) Acquire(ctx context.Context) (Browser, func() error, error) {
	switch s.kind {
	case SourceProvider:
		if s.provider == nil {
			return nil, nil, fmt.Errorf("browser source: provider is nil")
		}
		b, err := s.provider.Borrow(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to borrow browser: %w", err)
		}
		if isNil(b) {
			return nil, noRelease, nil
		}
		return b, func() error { return s.provider.Release(b) }, nil

	case SourceReady:
		return s.ready, noRelease, nil

	case SourcePending:
		if s.pending == nil {
			return nil, noRelease, nil
		}
		b, err := s.pending.Wait(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to await browser: %w", err)
		}
		return b, noRelease, nil

	default:
		return nil, noRelease, nil
	}
}

func noRelease() error { return nil }

// isNil reports whether b is nil or an interface holding a nil pointer.
func isNil(b Browser) bool {
	if b == nil {
		return true
	}
	v := reflect.ValueOf(b)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// Pending is a browser handle that resolves in the future. It is safe for
// concurrent use; every Wait observes the same outcome.
type Pending struct {
	done    chan struct{}
	once    sync.Once
	browser Browser
	err     error
}

// Launch starts fn in a new goroutine and returns a Pending that resolves to
// its result.
func Launch(ctx context.Context, fn func(ctx context.Context) (Browser, error)) *Pending {
	p := &Pending{done: make(chan struct{})}
	go func() {
		b, err := fn(ctx)
		p.resolve(b, err)
	}()
	return p
}

// Resolved returns a Pending that has already settled.
func Resolved(b Browser, err error) *Pending {
	p := &Pending{done: make(chan struct{})}
	p.resolve(b, err)
	return p
}

func (p *Pending) resolve(b Browser, err error) {
	if isNil(b) {
		b = nil
	}
	p.once.Do(func() {
		p.browser = b
		p.err = err
		close(p.done)
	})
}

// Wait blocks until the browser has resolved or ctx is done.
func (p *Pending) Wait(ctx context.Context) (Browser, error) {
	select {
	case <-p.done:
		return p.browser, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed once the pending browser has resolved.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}
