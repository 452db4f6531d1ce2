package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browsary/pkg/browser"
	"github.com/entrhq/browsary/pkg/browser/pool"
	"github.com/entrhq/browsary/pkg/dom"
	"github.com/entrhq/browsary/pkg/security/urlpolicy"
)

func TestDispatch_PooledGotoThenURL(t *testing.T) {
	_, provider, _ := newPooledFixture("https://example.com/start/")
	a := New(Config{Source: browser.FromProvider(provider)})
	idleBefore := provider.idleCount()

	got, err := Evaluate(context.Background(), a, func(ctx context.Context, page browser.Page) (any, error) {
		if _, err := a.Dispatch(ctx, page, "goto", map[string]any{"url": "/x", "waitUntil": "load"}); err != nil {
			return nil, err
		}
		return a.Dispatch(ctx, page, "url", map[string]any{})
	})

	require.NoError(t, err)
	assert.Equal(t, "https://example.com/x", got)
	assert.True(t, strings.HasSuffix(got.(string), "/x"))
	assert.Equal(t, idleBefore, provider.idleCount())
}

func TestDispatch_PoolGotoThenURL(t *testing.T) {
	log := &recorder{}
	page := newFakePage(log, "https://example.com/start/")
	p := pool.New(pool.LauncherFunc(func(context.Context) (browser.Browser, error) {
		return &fakeBrowser{log: log, page: page}, nil
	}), pool.WithCapacity(1))
	defer p.Close()

	require.NoError(t, p.Warm(context.Background(), 1))
	before := p.Stats()
	require.Equal(t, 1, before.Idle)

	a := New(Config{Source: browser.FromProvider(p)})
	got, err := Evaluate(context.Background(), a, func(ctx context.Context, page browser.Page) (any, error) {
		if _, err := a.Dispatch(ctx, page, "goto", map[string]any{"url": "/x"}); err != nil {
			return nil, err
		}
		return a.Dispatch(ctx, page, "url", map[string]any{})
	})

	require.NoError(t, err)
	assert.Equal(t, "https://example.com/x", got)

	after := p.Stats()
	assert.Equal(t, before.Idle, after.Idle)
	assert.Zero(t, after.InUse)
	assert.Equal(t, 1, after.Launched)
	assert.Equal(t, 1, log.count("new page"))
}

func TestDispatch_GotoResolvesRelativeURL(t *testing.T) {
	tests := []struct {
		name    string
		current string
		target  string
		want    string
	}{
		{"relative path", "https://a/b/", "c", "https://a/b/c"},
		{"absolute path", "https://a/b/c", "/d", "https://a/d"},
		{"absolute URL", "https://a/b/", "https://other.test/x", "https://other.test/x"},
		{"from blank page", "", "https://a/", "https://a/"},
		{"query only", "https://a/b?x=1", "?y=2", "https://a/b?y=2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &recorder{}
			page := newFakePage(log, tt.current)
			a := New(Config{})

			result, err := a.Dispatch(context.Background(), page, "goto", map[string]any{"url": tt.target})
			require.NoError(t, err)
			assert.Nil(t, result)
			assert.Equal(t, []string{"goto " + tt.want + " load"}, log.list())
		})
	}
}

func TestDispatch_GotoWaitUntil(t *testing.T) {
	log := &recorder{}
	page := newFakePage(log, "https://a/")
	a := New(Config{})

	_, err := a.Dispatch(context.Background(), page, "goto", map[string]any{"url": "/", "waitUntil": "networkidle2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"goto https://a/ networkidle"}, log.list())

	_, err = a.Dispatch(context.Background(), page, "goto", map[string]any{"url": "/", "waitUntil": "commit"})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestDispatch_GotoBlockedByPolicy(t *testing.T) {
	policy, err := urlpolicy.New(urlpolicy.Config{Denied: []string{"*.evil.test"}})
	require.NoError(t, err)

	log := &recorder{}
	page := newFakePage(log, "https://good.test/")
	a := New(Config{}, WithNavigationPolicy(policy))

	_, err = a.Dispatch(context.Background(), page, "goto", map[string]any{"url": "https://www.evil.test/"})
	assert.ErrorIs(t, err, urlpolicy.ErrBlocked)
	assert.ErrorIs(t, err, browser.ErrNavigation)
	assert.Empty(t, log.list(), "blocked navigation must not reach the page")

	_, err = a.Dispatch(context.Background(), page, "goto", map[string]any{"url": "/ok"})
	require.NoError(t, err)
}

func TestDispatch_UnknownActionHasNoSideEffects(t *testing.T) {
	for _, name := range []string{"evaluate", "screenshot", "", "QuerySelector", "goTo"} {
		t.Run(name, func(t *testing.T) {
			log := &recorder{}
			page := newFakePage(log, "https://a/")
			a := New(Config{})

			result, err := a.Dispatch(context.Background(), page, name, map[string]any{"selector": "a"})
			assert.ErrorIs(t, err, ErrInvalidAction)
			assert.Nil(t, result)
			assert.Empty(t, log.list())
		})
	}
}

func TestDispatch_InvalidParamsHaveNoSideEffects(t *testing.T) {
	log := &recorder{}
	page := newFakePage(log, "https://a/")
	a := New(Config{})

	_, err := a.Dispatch(context.Background(), page, "click", map[string]any{})
	assert.ErrorIs(t, err, ErrInvalidParams)
	assert.Empty(t, log.list())
}

func TestDispatch_QuerySelector(t *testing.T) {
	log := &recorder{}
	page := newFakePage(log, "https://a/")
	page.fragments["h1"] = []string{`<h1 class="title">Hello</h1>`, `<h1>Second</h1>`}
	a := New(Config{})

	result, err := a.Dispatch(context.Background(), page, "querySelector", map[string]any{"selector": "h1"})
	require.NoError(t, err)
	assert.Equal(t, dom.Node{Tag: "h1", Attrs: map[string]string{"class": "title"}, Text: "Hello"}, result)
	assert.Equal(t, []string{"outerHTML h1"}, log.list())
}

func TestDispatch_QuerySelectorNoMatchYieldsEmpty(t *testing.T) {
	page := newFakePage(&recorder{}, "https://a/")
	page.fragments["script"] = []string{`<script>track()</script>`}
	a := New(Config{})

	for _, sel := range []string{"#missing", "script"} {
		result, err := a.Dispatch(context.Background(), page, "querySelector", map[string]any{"selector": sel})
		require.NoError(t, err)
		require.Equal(t, dom.Empty, result)

		data, err := json.Marshal(result)
		require.NoError(t, err)
		assert.JSONEq(t, `{}`, string(data))
	}
}

func TestDispatch_QuerySelectorAllConcatenatesInOrder(t *testing.T) {
	page := newFakePage(&recorder{}, "https://a/")
	page.fragments["li"] = []string{`<li>one</li>`, `<li>two</li>`, `<li>three</li>`}
	a := New(Config{})

	result, err := a.Dispatch(context.Background(), page, "querySelectorAll", map[string]any{"selector": "li"})
	require.NoError(t, err)

	node := result.(dom.Node)
	require.Len(t, node.Children, 3)
	assert.Equal(t, "one", node.Children[0].Text)
	assert.Equal(t, "two", node.Children[1].Text)
	assert.Equal(t, "three", node.Children[2].Text)

	empty, err := a.Dispatch(context.Background(), page, "querySelectorAll", map[string]any{"selector": "tr"})
	require.NoError(t, err)
	assert.Equal(t, dom.Empty, empty)
}

func TestDispatch_ClickWithoutNavigation(t *testing.T) {
	log := &recorder{}
	page := newFakePage(log, "https://a/")
	a := New(Config{})

	result, err := a.Dispatch(context.Background(), page, "click", map[string]any{"selector": "#go"})
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, []string{"click #go"}, log.list())
}

func TestDispatch_ClickWaitsForNavigation(t *testing.T) {
	log := &recorder{}
	page := newFakePage(log, "https://a/")
	page.navigateOnClick = "https://a/next"
	page.navDelay = 20 * time.Millisecond
	a := New(Config{})

	start := time.Now()
	_, err := a.Dispatch(context.Background(), page, "click", map[string]any{"selector": "#go", "waitForNavigation": "true"})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), page.navDelay)
	calls := log.list()
	require.Len(t, calls, 3)
	assert.Equal(t, "arm navigation load", calls[0], "navigation wait must be armed before the click")
	assert.ElementsMatch(t, []string{"click #go", "navigated"}, calls[1:])

	u, _ := page.URL(context.Background())
	assert.Equal(t, "https://a/next", u)
}

func TestDispatch_ClickFailureCancelsNavigationWait(t *testing.T) {
	page := newFakePage(&recorder{}, "https://a/")
	page.clickErr = errors.New("element detached")
	a := New(Config{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := a.Dispatch(ctx, page, "click", map[string]any{"selector": "#go", "waitForNavigation": true})
	assert.ErrorIs(t, err, page.clickErr)
	assert.NoError(t, ctx.Err(), "wait should end with the click failure, not the deadline")
}

func TestDispatch_Type(t *testing.T) {
	log := &recorder{}
	page := newFakePage(log, "https://a/")
	a := New(Config{})

	_, err := a.Dispatch(context.Background(), page, "type", map[string]any{
		"selector": "input[name=q]",
		"text":     "golang",
		"delayMs":  json.Number("25"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{`type input[name=q] "golang" 25ms`}, log.list())
}

func TestDispatch_URL(t *testing.T) {
	page := newFakePage(&recorder{}, "https://a/b")
	a := New(Config{})

	result, err := a.Dispatch(context.Background(), page, "url", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://a/b", result)
}
