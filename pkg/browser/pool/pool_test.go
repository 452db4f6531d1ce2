package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/entrhq/browsary/pkg/browser"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeBrowser struct {
	id     int
	closed atomic.Bool
}

func (b *fakeBrowser) NewPage(context.Context) (browser.Page, error) { return browser.NoPage, nil }

func (b *fakeBrowser) Close() error {
	b.closed.Store(true)
	return nil
}

type countingLauncher struct {
	mu       sync.Mutex
	launched []*fakeBrowser
	err      error
}

func (l *countingLauncher) Launch(context.Context) (browser.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	b := &fakeBrowser{id: len(l.launched) + 1}
	l.launched = append(l.launched, b)
	return b, nil
}

func (l *countingLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.launched)
}

func TestPool_BorrowReusesReleasedBrowser(t *testing.T) {
	launcher := &countingLauncher{}
	p := New(launcher, WithCapacity(1))
	defer p.Close()

	ctx := context.Background()

	first, err := p.Borrow(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Release(first))

	second, err := p.Borrow(ctx)
	require.NoError(t, err)
	defer p.Release(second)

	assert.Equal(t, 1, launcher.count(), "released browser should be reused")
	assert.Same(t, first.(*lease).Browser, second.(*lease).Browser)
}

func TestPool_BorrowBlocksAtCapacity(t *testing.T) {
	p := New(&countingLauncher{}, WithCapacity(1))
	defer p.Close()

	held, err := p.Borrow(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = p.Borrow(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, p.Release(held))
}

func TestPool_WaiterUnblocksOnRelease(t *testing.T) {
	p := New(&countingLauncher{}, WithCapacity(1))
	defer p.Close()

	held, err := p.Borrow(context.Background())
	require.NoError(t, err)

	got := make(chan browser.Browser, 1)
	go func() {
		b, err := p.Borrow(context.Background())
		if err == nil {
			got <- b
		}
		close(got)
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, p.Release(held))

	select {
	case b, ok := <-got:
		require.True(t, ok, "waiting borrow failed")
		require.NoError(t, p.Release(b))
	case <-time.After(time.Second):
		t.Fatal("waiting borrow never unblocked")
	}
}

func TestPool_ReleaseErrors(t *testing.T) {
	p := New(&countingLauncher{}, WithCapacity(2))
	defer p.Close()

	b, err := p.Borrow(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, p.Release(&fakeBrowser{}), ErrForeignHandle)
	assert.ErrorIs(t, p.Release(nil), ErrForeignHandle)

	require.NoError(t, p.Release(b))
	assert.ErrorIs(t, p.Release(b), ErrAlreadyReleased)

	other := New(&countingLauncher{})
	defer other.Close()
	ob, err := other.Borrow(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, p.Release(ob), ErrForeignHandle)
	require.NoError(t, other.Release(ob))
}

func TestPool_LaunchFailureFreesSlot(t *testing.T) {
	boom := errors.New("no chromium")
	launcher := &countingLauncher{err: boom}
	p := New(launcher, WithCapacity(1))
	defer p.Close()

	_, err := p.Borrow(context.Background())
	require.ErrorIs(t, err, boom)

	launcher.mu.Lock()
	launcher.err = nil
	launcher.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	b, err := p.Borrow(ctx)
	require.NoError(t, err, "slot should be free after failed launch")
	require.NoError(t, p.Release(b))
}

func TestPool_Stats(t *testing.T) {
	p := New(&countingLauncher{}, WithCapacity(3))
	defer p.Close()

	ctx := context.Background()
	a, err := p.Borrow(ctx)
	require.NoError(t, err)
	b, err := p.Borrow(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Release(a))

	assert.Equal(t, Stats{Capacity: 3, Idle: 1, InUse: 1, Launched: 2}, p.Stats())
	require.NoError(t, p.Release(b))
}

func TestPool_Warm(t *testing.T) {
	launcher := &countingLauncher{}
	p := New(launcher, WithCapacity(2))
	defer p.Close()

	require.NoError(t, p.Warm(context.Background(), 5))
	assert.Equal(t, 2, launcher.count(), "warm is bounded by capacity")
	assert.Equal(t, 2, p.Stats().Idle)

	b, err := p.Borrow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, launcher.count(), "borrow should use a warmed browser")
	require.NoError(t, p.Release(b))
}

func TestPool_Close(t *testing.T) {
	launcher := &countingLauncher{}
	p := New(launcher, WithCapacity(2))

	ctx := context.Background()
	idle, err := p.Borrow(ctx)
	require.NoError(t, err)
	out, err := p.Borrow(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Release(idle))

	require.NoError(t, p.Close())
	require.NoError(t, p.Close(), "close is idempotent")

	assert.True(t, launcher.launched[0].closed.Load() || launcher.launched[1].closed.Load())

	_, err = p.Borrow(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	// A browser on loan during shutdown is closed when it comes back
	assert.ErrorIs(t, p.Release(out), ErrClosed)
	assert.True(t, out.(*lease).Browser.(*fakeBrowser).closed.Load())
}

func TestPool_ConcurrentBorrowers(t *testing.T) {
	launcher := &countingLauncher{}
	p := New(launcher, WithCapacity(3))
	defer p.Close()

	var inUse, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := p.Borrow(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			n := inUse.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inUse.Add(-1)
			assert.NoError(t, p.Release(b))
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.LessOrEqual(t, launcher.count(), 3)
}
