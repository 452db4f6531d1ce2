package playwright

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browsary/pkg/browser"
	"github.com/entrhq/browsary/pkg/browser/browsertest"
)

func TestParseEngine(t *testing.T) {
	tests := []struct {
		in      string
		want    Engine
		wantErr bool
	}{
		{in: "", want: EngineChromium},
		{in: "chromium", want: EngineChromium},
		{in: " Firefox ", want: EngineFirefox},
		{in: "webkit", want: EngineWebKit},
		{in: "safari", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEngine(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadState(t *testing.T) {
	assert.Equal(t, "load", loadState(""))
	assert.Equal(t, "load", loadState(browser.WaitUntilLoad))
	assert.Equal(t, "domcontentloaded", loadState(browser.WaitUntilDOMContentLoaded))
	assert.Equal(t, "networkidle", loadState(browser.WaitUntilNetworkIdle))
}

func TestTimeoutMillis(t *testing.T) {
	assert.Equal(t, float64(30000), timeoutMillis(context.Background(), 30*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got := timeoutMillis(ctx, 30*time.Second)
	assert.LessOrEqual(t, got, float64(2000))
	assert.Greater(t, got, float64(1000))

	expired, cancel2 := context.WithTimeout(context.Background(), -time.Second)
	defer cancel2()
	assert.Equal(t, float64(1), timeoutMillis(expired, 30*time.Second))
}

func TestToStrings(t *testing.T) {
	assert.Equal(t, []string{"<a></a>", "<b></b>"}, toStrings([]interface{}{"<a></a>", 1, "<b></b>"}))
	assert.Nil(t, toStrings(nil))
	assert.Nil(t, toStrings("not a list"))
}

func TestLauncher_RequiresRunningRuntime(t *testing.T) {
	rt := NewRuntime(WithSkipInstall())
	assert.False(t, rt.Running())
	assert.NoError(t, rt.Stop())

	l := NewLauncher(rt)
	_, err := l.Launch(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestLauncher_Options(t *testing.T) {
	l := NewLauncher(NewRuntime(),
		WithEngine(EngineFirefox),
		WithHeadless(false),
		WithViewport(browser.Viewport{Width: 390, Height: 844, Mobile: true}),
		WithTimeout(5*time.Second),
	)

	assert.Equal(t, EngineFirefox, l.engine)
	assert.False(t, l.headless)
	assert.Equal(t, 390, l.viewport.Width)
	assert.True(t, l.viewport.Mobile)
	assert.Equal(t, 5*time.Second, l.timeout)

	// invalid values keep the defaults
	d := NewLauncher(NewRuntime(), WithViewport(browser.Viewport{}), WithTimeout(0), WithEngine(""))
	assert.Equal(t, EngineChromium, d.engine)
	assert.Equal(t, browser.DefaultViewportWidth, d.viewport.Width)
	assert.Equal(t, browser.DefaultTimeout, d.timeout)
}

func TestLauncher_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLauncher(NewRuntime()).Launch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIntegration(t *testing.T) {
	browsertest.RequireIntegration(t)

	rt := NewRuntime(WithBrowsers("chromium"))
	require.NoError(t, rt.Start())
	t.Cleanup(func() { assert.NoError(t, rt.Stop()) })

	b, err := NewLauncher(rt).Launch(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, b.Close()) })

	browsertest.Run(t, b)
}
