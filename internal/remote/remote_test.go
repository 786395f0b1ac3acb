package remote_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadopc/tally/internal/remote"
	"github.com/sadopc/tally/internal/remote/remotetest"
)

func TestMemoryBackendScalarAndMap(t *testing.T) {
	ctx := context.Background()
	m := remote.NewMemoryBackend()
	defer m.Close()

	v, err := m.ReadScalar(ctx, remote.KeyGlobalCount)
	require.NoError(t, err)
	assert.Zero(t, v)

	require.NoError(t, m.Increment(ctx, remote.KeyGlobalCount, 10))
	require.NoError(t, m.Increment(ctx, remote.KeyGlobalCount, 5))
	require.NoError(t, m.Increment(ctx, remote.DailyKey("2025-03-10"), 3))
	require.NoError(t, m.Increment(ctx, remote.DailyKey("2025-03-11"), 4))

	v, err = m.ReadScalar(ctx, remote.KeyGlobalCount)
	require.NoError(t, err)
	assert.Equal(t, int64(15), v)

	daily, err := m.ReadMap(ctx, remote.KeyDailyCounts)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"2025-03-10": 3, "2025-03-11": 4}, daily)
}

func TestMemoryBackendConcurrentIncrementsAreAtomic(t *testing.T) {
	ctx := context.Background()
	m := remote.NewMemoryBackend()
	defer m.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Increment(ctx, remote.KeyGlobalCount, 2)
		}()
	}
	wg.Wait()

	v, err := m.ReadScalar(ctx, remote.KeyGlobalCount)
	require.NoError(t, err)
	assert.Equal(t, int64(100), v)
}

func TestMemoryBackendClosed(t *testing.T) {
	m := remote.NewMemoryBackend()
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	err := m.Increment(context.Background(), remote.KeyGlobalCount, 1)
	assert.ErrorIs(t, err, remote.ErrClosed)
}

func TestSplitKey(t *testing.T) {
	p, member, ok := remote.SplitKey(remote.DailyKey("2025-01-02"))
	assert.True(t, ok)
	assert.Equal(t, remote.KeyDailyCounts, p)
	assert.Equal(t, "2025-01-02", member)

	_, _, ok = remote.SplitKey(remote.KeyGlobalCount)
	assert.False(t, ok)
}

// ============================================================
// Client
// ============================================================

func TestClientIncrementGlobalAndDaily(t *testing.T) {
	ctx := context.Background()
	b := remotetest.New()
	c := remote.NewClient(b)

	require.NoError(t, c.Initialize(ctx))
	require.NoError(t, c.IncrementGlobalAndDaily(ctx, 7))

	n, err := c.GlobalCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	daily, err := c.DailyCounts(ctx)
	require.NoError(t, err)
	today := time.Now().UTC().Format("2006-01-02")
	assert.Equal(t, int64(7), daily[today])

	stamp, err := c.LastUpdated(ctx)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), stamp, 5*time.Second)
}

func TestClientDailyFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	b := remotetest.New()
	b.FailKeyPrefix(remote.KeyDailyCounts + "/")
	c := remote.NewClient(b)

	require.NoError(t, c.IncrementGlobalAndDaily(ctx, 4))
	assert.Equal(t, []int64{4}, b.AppliedTo(remote.KeyGlobalCount))

	daily, err := c.DailyCounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, daily)
}

func TestClientGlobalFailureIsReturned(t *testing.T) {
	ctx := context.Background()
	b := remotetest.New()
	b.SetDown(true)
	c := remote.NewClient(b)

	err := c.IncrementGlobalAndDaily(ctx, 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, remotetest.ErrInjected)
	assert.Empty(t, b.Applied())
}

func TestClientIncrementDailyUsesUTCDay(t *testing.T) {
	ctx := context.Background()
	b := remotetest.New()
	c := remote.NewClient(b)

	// 01:00 at UTC+05:30 is the previous UTC day.
	at := time.Date(2025, 3, 10, 1, 0, 0, 0, time.FixedZone("IST", 19800))
	require.NoError(t, c.IncrementDaily(ctx, 2, at))
	assert.Equal(t, []int64{2}, b.AppliedTo(remote.DailyKey("2025-03-09")))
}

// ============================================================
// Subscriptions
// ============================================================

func serveClient(t *testing.T, c *remote.Client) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestSubscribeGlobalDeliversBaselineAndUpdates(t *testing.T) {
	ctx := context.Background()
	m := remote.NewMemoryBackend()
	require.NoError(t, m.Increment(ctx, remote.KeyGlobalCount, 100))
	c := remote.NewClient(m)
	serveClient(t, c)

	var last atomic.Int64
	unsubscribe := c.SubscribeGlobal(func(v int64) { last.Store(v) })

	require.Eventually(t, func() bool { return last.Load() == 100 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Increment(ctx, remote.KeyGlobalCount, 5))
	require.Eventually(t, func() bool { return last.Load() == 105 }, 2*time.Second, 10*time.Millisecond)

	unsubscribe()
	require.NoError(t, m.Increment(ctx, remote.KeyGlobalCount, 5))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(105), last.Load())
}

func TestSubscribeDailyDeliversMap(t *testing.T) {
	ctx := context.Background()
	m := remote.NewMemoryBackend()
	c := remote.NewClient(m)
	serveClient(t, c)

	var mu sync.Mutex
	var got map[string]int64
	unsubscribe := c.SubscribeDaily(func(d map[string]int64) {
		mu.Lock()
		got = d
		mu.Unlock()
	})
	defer unsubscribe()

	require.NoError(t, m.Increment(ctx, remote.DailyKey("2025-03-10"), 8))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got["2025-03-10"] == 8
	}, 2*time.Second, 10*time.Millisecond)
}

// breakingBackend ends the first watch stream immediately.
type breakingBackend struct {
	*remote.MemoryBackend
	watches   atomic.Int32
	baselines atomic.Int32
}

func (b *breakingBackend) ReadScalar(ctx context.Context, key string) (int64, error) {
	b.baselines.Add(1)
	return b.MemoryBackend.ReadScalar(ctx, key)
}

func (b *breakingBackend) Watch(ctx context.Context, key string, fn func(int64)) error {
	if b.watches.Add(1) == 1 {
		return errors.New("connection reset")
	}
	return b.MemoryBackend.Watch(ctx, key, fn)
}

func TestSubscribeRefetchesBaselineAfterBrokenStream(t *testing.T) {
	ctx := context.Background()
	b := &breakingBackend{MemoryBackend: remote.NewMemoryBackend()}
	c := remote.NewClient(b)
	serveClient(t, c)

	var last atomic.Int64
	unsubscribe := c.SubscribeGlobal(func(v int64) { last.Store(v) })
	defer unsubscribe()

	require.Eventually(t, func() bool { return b.watches.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, b.baselines.Load(), int32(2))

	require.NoError(t, b.Increment(ctx, remote.KeyGlobalCount, 3))
	require.Eventually(t, func() bool { return last.Load() == 3 }, 2*time.Second, 10*time.Millisecond)
}
