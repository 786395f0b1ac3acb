package tally

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadopc/tally/internal/config"
	"github.com/sadopc/tally/internal/remote"
	"github.com/sadopc/tally/internal/remote/remotetest"
	"github.com/sadopc/tally/internal/store"
	"github.com/sadopc/tally/internal/syncq"
)

// ============================================================
// Fakes
// ============================================================

type fakeCounter struct {
	mu  sync.Mutex
	n   int64
	err error
}

func (c *fakeCounter) Count() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func (c *fakeCounter) Increment(delta int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.n, c.err
	}
	c.n += delta
	return c.n, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []store.HistoryEntry
	err     error
}

func (r *fakeRecorder) Record(count int64, typ store.EntryType) (store.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return store.HistoryEntry{}, r.err
	}
	e := store.HistoryEntry{ID: "x", Count: count, Type: typ, Timestamp: time.Now()}
	r.entries = append(r.entries, e)
	return e, nil
}

func (r *fakeRecorder) all() []store.HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]store.HistoryEntry(nil), r.entries...)
}

type fakeSyncer struct {
	mu      sync.Mutex
	outcome syncq.Outcome
	deltas  []int64
}

func (s *fakeSyncer) Submit(ctx context.Context, delta int64) syncq.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltas = append(s.deltas, delta)
	return s.outcome
}

func (s *fakeSyncer) submitted() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.deltas...)
}

// ============================================================
// Service
// ============================================================

func TestTapIncrementsRecordsAndSyncs(t *testing.T) {
	c, r, s := &fakeCounter{n: 41}, &fakeRecorder{}, &fakeSyncer{outcome: syncq.Applied}
	svc := NewService(c, r, s)

	n, err := svc.Tap()
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.Equal(t, int64(42), svc.Count())

	svc.Wait()
	assert.Equal(t, []int64{1}, s.submitted())
	entries := r.all()
	require.Len(t, entries, 1)
	assert.Equal(t, store.EntryIncrement, entries[0].Type)
	assert.Equal(t, int64(1), entries[0].Count)
}

func TestTapSucceedsWhenHistoryFails(t *testing.T) {
	c, s := &fakeCounter{}, &fakeSyncer{outcome: syncq.QueuedForRetry}
	svc := NewService(c, &fakeRecorder{err: errors.New("disk full")}, s)

	n, err := svc.Tap()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	svc.Wait()
	assert.Equal(t, []int64{1}, s.submitted())
}

func TestTapCounterFailureSkipsSync(t *testing.T) {
	s := &fakeSyncer{}
	svc := NewService(&fakeCounter{err: errors.New("boom")}, &fakeRecorder{}, s)

	_, err := svc.Tap()
	require.Error(t, err)
	svc.Wait()
	assert.Empty(t, s.submitted())
}

func TestAddBulk(t *testing.T) {
	tests := []struct {
		name    string
		outcome syncq.Outcome
		warning string
	}{
		{"applied", syncq.Applied, ""},
		{"queued", syncq.QueuedForRetry, SyncPendingWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, r, s := &fakeCounter{n: 10}, &fakeRecorder{}, &fakeSyncer{outcome: tt.outcome}
			svc := NewService(c, r, s)

			res, err := svc.AddBulk(context.Background(), 500)
			require.NoError(t, err)
			assert.Equal(t, Result{PersonalCount: 510, Outcome: tt.outcome, Warning: tt.warning}, res)
			assert.Equal(t, []int64{500}, s.submitted())
			require.Len(t, r.all(), 1)
			assert.Equal(t, store.EntryBulk, r.all()[0].Type)
		})
	}
}

func TestAddBulkRejectsOutOfRange(t *testing.T) {
	for _, n := range []int64{0, -3, MaxBulkCount + 1, math.MaxInt64} {
		c, r, s := &fakeCounter{n: 7}, &fakeRecorder{}, &fakeSyncer{}
		svc := NewService(c, r, s)

		res, err := svc.AddBulk(context.Background(), n)
		require.ErrorIs(t, err, ErrInvalidCount)
		assert.Equal(t, syncq.Rejected, res.Outcome)
		assert.Equal(t, int64(7), res.PersonalCount)
		assert.Empty(t, s.submitted())
		assert.Empty(t, r.all())
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"5", 5, true},
		{"  1200 ", 1200, true},
		{"0", 0, false},
		{"-4", 0, false},
		{"abc", 0, false},
		{"", 0, false},
		{"1.5", 0, false},
		{"1000000000", MaxBulkCount, true},
		{"1000000001", 0, false},
		{"9223372036854775807", 0, false},
		{"9223372036854775808", 0, false},
	}
	for _, tt := range tests {
		n, err := ParseCount(tt.in)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrInvalidCount, "%q", tt.in)
			continue
		}
		require.NoError(t, err, "%q", tt.in)
		assert.Equal(t, tt.want, n)
	}
}

func TestNeedsConfirmation(t *testing.T) {
	assert.False(t, NeedsConfirmation(LargeBulkThreshold))
	assert.True(t, NeedsConfirmation(LargeBulkThreshold+1))
	assert.False(t, NeedsConfirmation(1))
}

// ============================================================
// App
// ============================================================

func newTestApp(t *testing.T) (*App, *remotetest.Flaky) {
	t.Helper()
	s, err := store.NewMemory()
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Sync.FlushInterval = 20 * time.Millisecond
	cfg.Sync.BreakerFailures = 100
	cfg.Remote.Timeout = time.Second
	cfg.Sync.RemoteTimeout = time.Second

	b := remotetest.New()
	return New(cfg, s, b), b
}

func TestAppEndToEnd(t *testing.T) {
	app, b := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := app.Start(ctx)

	for i := 0; i < 3; i++ {
		_, err := app.Service.Tap()
		require.NoError(t, err)
	}
	res, err := app.Service.AddBulk(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, syncq.Applied, res.Outcome)
	assert.Equal(t, int64(103), res.PersonalCount)

	app.Service.Wait()
	snap := app.Snapshot(ctx)
	assert.Equal(t, int64(103), snap.Personal)
	assert.Equal(t, int64(103), snap.Global)
	require.NoError(t, snap.GlobalErr)
	assert.False(t, snap.GlobalUpdated.IsZero())
	assert.Zero(t, snap.Sync.Pending)
	assert.Equal(t, int64(103), sum(b.AppliedTo(remote.KeyGlobalCount)))

	entries, err := app.History.Recent(0)
	require.NoError(t, err)
	assert.Len(t, entries, 4)

	cancel()
	<-done
	require.NoError(t, app.Close())
}

func TestAppStartDoesNotWaitForHungRemote(t *testing.T) {
	app, b := newTestApp(t)
	b.SetHang(true)
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan (<-chan error), 1)
	go func() { started <- app.Start(ctx) }()

	var done <-chan error
	select {
	case done = <-started:
	case <-time.After(500 * time.Millisecond):
		cancel()
		t.Fatal("Start blocked on the remote")
	}

	n, err := app.Service.Tap()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	cancel()
	<-done
	app.Service.Wait()
	require.NoError(t, app.Close())
}

func TestAppOfflineQueuesAndRecovers(t *testing.T) {
	app, b := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b.SetDown(true)
	res, err := app.Service.AddBulk(ctx, 40)
	require.NoError(t, err)
	assert.Equal(t, syncq.QueuedForRetry, res.Outcome)
	assert.Equal(t, SyncPendingWarning, res.Warning)
	assert.Equal(t, int64(40), app.Counter.Count())
	assert.Equal(t, int64(40), app.Queue.Pending())

	snap := app.Snapshot(ctx)
	assert.Error(t, snap.GlobalErr)
	assert.Equal(t, int64(40), snap.Personal)

	done := app.Start(ctx)
	b.SetDown(false)
	require.Eventually(t, func() bool { return app.Queue.Pending() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(40), app.Snapshot(ctx).Global)

	cancel()
	<-done
	require.NoError(t, app.Close())
}

func TestAppPersistsAcrossRestart(t *testing.T) {
	path := t.TempDir() + "/tally.db"
	cfg := config.Default()
	cfg.DBPath = path

	open := func() *App {
		s, err := store.New(path)
		require.NoError(t, err)
		return New(cfg, s, remote.NewMemoryBackend())
	}

	app := open()
	_, err := app.Service.AddBulk(context.Background(), 12)
	require.NoError(t, err)
	require.NoError(t, app.Close())

	app = open()
	defer app.Close()
	assert.Equal(t, int64(12), app.Counter.Count())
	total, err := app.History.Total()
	require.NoError(t, err)
	assert.Equal(t, int64(12), total)
}

func TestDialBackendMemory(t *testing.T) {
	b, err := dialBackend(context.Background(), config.RemoteConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &remote.MemoryBackend{}, b)
	require.NoError(t, b.Close())

	_, err = dialBackend(context.Background(), config.RemoteConfig{Backend: "carrier-pigeon"})
	assert.Error(t, err)
}

func sum(xs []int64) int64 {
	var n int64
	for _, x := range xs {
		n += x
	}
	return n
}
