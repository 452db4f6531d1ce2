package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/entrhq/browsary/pkg/browser"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder is an ordered, concurrency-safe call log shared by the fakes.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) count(call string) int {
	n := 0
	for _, c := range r.list() {
		if c == call {
			n++
		}
	}
	return n
}

type fakePage struct {
	log *recorder

	mu  sync.Mutex
	url string

	// fragments maps a selector to the outer HTML of its matches
	fragments map[string][]string

	// navigateOnClick makes a click move the page to this URL
	navigateOnClick string
	navDelay        time.Duration
	navigated       chan struct{}

	clickErr    error
	closeErr    error
	viewportErr error
}

func newFakePage(log *recorder, url string) *fakePage {
	return &fakePage{
		log:       log,
		url:       url,
		fragments: map[string][]string{},
		navigated: make(chan struct{}, 1),
	}
}

func (p *fakePage) Goto(_ context.Context, url string, until browser.WaitUntil) error {
	p.log.add("goto %s %s", url, until)
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return nil
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	p.log.add("click %s", selector)
	if p.clickErr != nil {
		return p.clickErr
	}
	if p.navigateOnClick != "" {
		go func() {
			select {
			case <-time.After(p.navDelay):
			case <-ctx.Done():
				return
			}
			p.mu.Lock()
			p.url = p.navigateOnClick
			p.mu.Unlock()
			p.navigated <- struct{}{}
		}()
	}
	return nil
}

func (p *fakePage) WaitForNavigation(ctx context.Context, until browser.WaitUntil) func() error {
	p.log.add("arm navigation %s", until)
	return func() error {
		select {
		case <-p.navigated:
			p.log.add("navigated")
			return nil
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", browser.ErrNavigation, ctx.Err())
		}
	}
}

func (p *fakePage) Type(_ context.Context, selector, text string, delay time.Duration) error {
	p.log.add("type %s %q %s", selector, text, delay)
	return nil
}

func (p *fakePage) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePage) OuterHTML(_ context.Context, selector string) (string, bool, error) {
	p.log.add("outerHTML %s", selector)
	matches := p.fragments[selector]
	if len(matches) == 0 {
		return "", false, nil
	}
	return matches[0], true, nil
}

func (p *fakePage) OuterHTMLAll(_ context.Context, selector string) ([]string, error) {
	p.log.add("outerHTMLAll %s", selector)
	return p.fragments[selector], nil
}

func (p *fakePage) SetViewport(_ context.Context, v browser.Viewport) error {
	p.log.add("viewport %dx%d", v.Width, v.Height)
	return p.viewportErr
}

func (p *fakePage) Close() error {
	p.log.add("close page")
	return p.closeErr
}

type fakeBrowser struct {
	log     *recorder
	page    *fakePage
	pageErr error
}

func (b *fakeBrowser) NewPage(context.Context) (browser.Page, error) {
	b.log.add("new page")
	if b.pageErr != nil {
		return nil, b.pageErr
	}
	return b.page, nil
}

func (b *fakeBrowser) Close() error {
	b.log.add("close browser")
	return nil
}

// fakeProvider lends out a fixed set of idle browsers.
type fakeProvider struct {
	log *recorder

	mu         sync.Mutex
	idle       []browser.Browser
	borrowErr  error
	releaseErr error
}

func (p *fakeProvider) Borrow(context.Context) (browser.Browser, error) {
	p.log.add("borrow")
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.borrowErr != nil {
		return nil, p.borrowErr
	}
	if len(p.idle) == 0 {
		return nil, errors.New("pool exhausted")
	}
	b := p.idle[0]
	p.idle = p.idle[1:]
	return b, nil
}

func (p *fakeProvider) Release(b browser.Browser) error {
	p.log.add("release")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idle = append(p.idle, b)
	return p.releaseErr
}

func (p *fakeProvider) idleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// newPooledFixture returns a provider with one idle browser whose page
// starts at url.
func newPooledFixture(url string) (*recorder, *fakeProvider, *fakePage) {
	log := &recorder{}
	page := newFakePage(log, url)
	b := &fakeBrowser{log: log, page: page}
	return log, &fakeProvider{log: log, idle: []browser.Browser{b}}, page
}
