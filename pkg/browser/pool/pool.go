// Package pool provides a bounded browser.Provider that launches browsers on
// demand and reuses released ones.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/entrhq/browsary/pkg/browser"
	"github.com/entrhq/browsary/pkg/logging"
)

// DefaultCapacity is the number of browsers a pool holds when no capacity is
// configured.
const DefaultCapacity = 2

var (
	// ErrClosed is returned by Borrow and Release after Close.
	ErrClosed = errors.New("browser pool is closed")

	// ErrForeignHandle is returned when releasing a browser the pool did not lend.
	ErrForeignHandle = errors.New("browser was not borrowed from this pool")

	// ErrAlreadyReleased is returned when the same lease is released twice.
	ErrAlreadyReleased = errors.New("browser already released")
)

// Launcher starts a new browser instance.
type Launcher interface {
	Launch(ctx context.Context) (browser.Browser, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context) (browser.Browser, error)

// Launch calls f(ctx).
func (f LauncherFunc) Launch(ctx context.Context) (browser.Browser, error) {
	return f(ctx)
}

// Stats is a snapshot of pool occupancy.
type Stats struct {
	Capacity int `json:"capacity"`
	Idle     int `json:"idle"`
	InUse    int `json:"in_use"`
	Launched int `json:"launched"`
}

// Option configures a Pool.
type Option func(*Pool)

// WithCapacity sets the maximum number of browsers the pool lends at once.
// Values below one are ignored.
func WithCapacity(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.capacity = n
		}
	}
}

// WithLogger sets the pool logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// Pool lends browsers out to one borrower at a time. Browsers are launched
// lazily up to the pool capacity; Borrow blocks once every browser is in use.
type Pool struct {
	launcher Launcher
	capacity int
	logger   *logging.Logger

	sem *semaphore.Weighted

	mu       sync.Mutex
	idle     []browser.Browser
	leases   map[string]*lease
	launched int
	closed   bool
}

// New creates a pool that uses launcher to start browsers.
func New(launcher Launcher, opts ...Option) *Pool {
	p := &Pool{
		launcher: launcher,
		capacity: DefaultCapacity,
		logger:   logging.Discard("pool"),
		leases:   make(map[string]*lease),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.sem = semaphore.NewWeighted(int64(p.capacity))
	return p
}

// lease is the handle handed to borrowers. It wraps the pooled browser so
// Release can verify ownership and detect double releases.
type lease struct {
	browser.Browser
	id       string
	released bool
}

// Borrow returns a browser, launching one when none is idle. It blocks while
// the pool is at capacity and returns ctx.Err() if ctx ends first.
func (p *Pool) Borrow(ctx context.Context) (browser.Browser, error) {
	if p.isClosed() {
		return nil, ErrClosed
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, ErrClosed
	}
	var b browser.Browser
	if n := len(p.idle); n > 0 {
		b = p.idle[n-1]
		p.idle = p.idle[:n-1]
	}
	p.mu.Unlock()

	if b == nil {
		launched, err := p.launcher.Launch(ctx)
		if err != nil {
			p.sem.Release(1)
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		b = launched

		p.mu.Lock()
		p.launched++
		p.mu.Unlock()
		p.logger.Infof("launched browser (%d/%d)", p.Stats().Launched, p.capacity)
	}

	l := &lease{Browser: b, id: uuid.New().String()}

	p.mu.Lock()
	p.leases[l.id] = l
	p.mu.Unlock()

	p.logger.Debugf("borrowed browser lease=%s", l.id)
	return l, nil
}

// Release returns a borrowed browser to the pool.
func (p *Pool) Release(b browser.Browser) error {
	l, ok := b.(*lease)
	if !ok || l == nil {
		return ErrForeignHandle
	}

	p.mu.Lock()
	if l.released {
		p.mu.Unlock()
		return ErrAlreadyReleased
	}
	if _, owned := p.leases[l.id]; !owned {
		p.mu.Unlock()
		return ErrForeignHandle
	}
	l.released = true
	delete(p.leases, l.id)

	closed := p.closed
	if !closed {
		p.idle = append(p.idle, l.Browser)
	}
	p.mu.Unlock()

	p.sem.Release(1)
	p.logger.Debugf("released browser lease=%s", l.id)

	if closed {
		// The pool shut down while this browser was out
		if err := l.Browser.Close(); err != nil {
			return fmt.Errorf("failed to close browser after pool shutdown: %w", err)
		}
		return ErrClosed
	}
	return nil
}

// Warm launches browsers until at least n are idle or in use, bounded by the
// pool capacity.
func (p *Pool) Warm(ctx context.Context, n int) error {
	if n > p.capacity {
		n = p.capacity
	}
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return ErrClosed
		}
		have := len(p.idle) + len(p.leases)
		p.mu.Unlock()
		if have >= n {
			return nil
		}

		if !p.sem.TryAcquire(1) {
			return nil
		}
		b, err := p.launcher.Launch(ctx)
		if err != nil {
			p.sem.Release(1)
			return fmt.Errorf("failed to launch browser: %w", err)
		}

		p.mu.Lock()
		p.launched++
		p.idle = append(p.idle, b)
		p.mu.Unlock()
		p.sem.Release(1)
	}
}

// Stats reports the current occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Capacity: p.capacity,
		Idle:     len(p.idle),
		InUse:    len(p.leases),
		Launched: p.launched,
	}
}

// Close shuts down idle browsers and rejects further borrows. Browsers still
// on loan are closed when they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var errs []error
	for _, b := range idle {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.logger.Infof("pool closed (%d idle browsers shut down)", len(idle))
	return errors.Join(errs...)
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

var _ browser.Provider = (*Pool)(nil)
