// Package browsertest checks that a backend implements browser.Page the way
// the agent relies on.
//
// Backends call Run from an integration test with a launched browser:
//
//	func TestIntegration(t *testing.T) {
//	    browsertest.RequireIntegration(t)
//	    b := launch(t)
//	    browsertest.Run(t, b)
//	}
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browsary/pkg/browser"
)

// IntegrationEnv enables tests that drive a real browser when set to 1.
const IntegrationEnv = "BROWSARY_INTEGRATION"

// RequireIntegration skips t unless integration tests are enabled.
func RequireIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv(IntegrationEnv) != "1" {
		t.Skipf("set %s=1 to run browser integration tests", IntegrationEnv)
	}
}

const indexPage = `<!doctype html>
<html><head><title>Index</title><script>window.loaded = true</script></head>
<body>
<main id="content">
  <h1 class="title">Fixture</h1>
  <ul><li>one</li><li>two</li><li>three</li></ul>
  <a id="next" href="/next">Next page</a>
  <input id="q" name="q" type="text">
</main>
</body></html>`

const nextPage = `<!doctype html>
<html><head><title>Next</title></head>
<body><p id="msg">arrived</p></body></html>`

// NewServer serves the fixture pages used by Run.
func NewServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, indexPage)
	})
	mux.HandleFunc("/next", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, nextPage)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// Run exercises every page primitive of b against a fixture server.
func Run(t *testing.T, b browser.Browser) {
	t.Helper()
	server := NewServer(t)

	open := func(t *testing.T) (context.Context, browser.Page) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		t.Cleanup(cancel)

		page, err := b.NewPage(ctx)
		require.NoError(t, err)
		t.Cleanup(func() { assert.NoError(t, page.Close()) })

		require.NoError(t, page.Goto(ctx, server.URL+"/", browser.WaitUntilLoad))
		return ctx, page
	}

	t.Run("url", func(t *testing.T) {
		ctx, page := open(t)
		got, err := page.URL(ctx)
		require.NoError(t, err)
		assert.Equal(t, server.URL+"/", got)
	})

	t.Run("outer html", func(t *testing.T) {
		ctx, page := open(t)

		html, found, err := page.OuterHTML(ctx, "h1.title")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, `<h1 class="title">Fixture</h1>`, html)

		_, found, err = page.OuterHTML(ctx, "#missing")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("outer html all", func(t *testing.T) {
		ctx, page := open(t)

		all, err := page.OuterHTMLAll(ctx, "li")
		require.NoError(t, err)
		assert.Equal(t, []string{"<li>one</li>", "<li>two</li>", "<li>three</li>"}, all)

		none, err := page.OuterHTMLAll(ctx, "table")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("click with navigation", func(t *testing.T) {
		ctx, page := open(t)

		wait := page.WaitForNavigation(ctx, browser.WaitUntilLoad)
		require.NoError(t, page.Click(ctx, "#next"))
		require.NoError(t, wait())

		got, err := page.URL(ctx)
		require.NoError(t, err)
		assert.Equal(t, server.URL+"/next", got)

		html, found, err := page.OuterHTML(ctx, "#msg")
		require.NoError(t, err)
		require.True(t, found)
		assert.Contains(t, html, "arrived")
	})

	t.Run("click missing selector", func(t *testing.T) {
		ctx, page := open(t)
		short, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		err := page.Click(short, "#does-not-exist")
		require.Error(t, err)
		assert.True(t, errors.Is(err, browser.ErrSelectorNotFound) || errors.Is(err, context.DeadlineExceeded), err.Error())
	})

	t.Run("type", func(t *testing.T) {
		ctx, page := open(t)

		require.NoError(t, page.Type(ctx, "#q", "hello", 5*time.Millisecond))

		html, found, err := page.OuterHTML(ctx, "#q")
		require.NoError(t, err)
		require.True(t, found)
		// the value property is not reflected in markup
		assert.True(t, strings.HasPrefix(html, "<input"))
	})

	t.Run("viewport", func(t *testing.T) {
		ctx, page := open(t)
		require.NoError(t, page.SetViewport(ctx, browser.Viewport{Width: 800, Height: 600}))
		assert.Error(t, page.SetViewport(ctx, browser.Viewport{}))
	})

	t.Run("navigation failure", func(t *testing.T) {
		ctx, page := open(t)
		err := page.Goto(ctx, "http://127.0.0.1:1/unreachable", browser.WaitUntilLoad)
		assert.ErrorIs(t, err, browser.ErrNavigation)
	})
}
