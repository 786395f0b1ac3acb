package remote

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/sadopc/tally/internal/history"
	"github.com/sadopc/tally/internal/logging"
	"github.com/sadopc/tally/internal/metrics"
	"github.com/sadopc/tally/internal/supervisor"
)

// Client speaks the counter domain on top of a Backend.
type Client struct {
	backend Backend
	log     zerolog.Logger
	now     func() time.Time
	subs    *suture.Supervisor
}

func NewClient(b Backend) *Client {
	return &Client{
		backend: b,
		log:     logging.Component("remote"),
		now:     time.Now,
		subs:    supervisor.New("remote-subscriptions", supervisor.Config{FailureBackoff: 3 * time.Second}),
	}
}

func (c *Client) observe(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RemoteDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}

// Initialize creates the global counter at zero if it does not exist.
func (c *Client) Initialize(ctx context.Context) error {
	if err := c.backend.Increment(ctx, KeyGlobalCount, 0); err != nil {
		return fmt.Errorf("initialize global count: %w", err)
	}
	return nil
}

// GlobalCount reads the current global total.
func (c *Client) GlobalCount(ctx context.Context) (n int64, err error) {
	defer func(start time.Time) { c.observe("read_global", start, err) }(time.Now())
	n, err = c.backend.ReadScalar(ctx, KeyGlobalCount)
	if err != nil {
		return 0, fmt.Errorf("read global count: %w", err)
	}
	return n, nil
}

// LastUpdated is the server time of the most recent global increment.
// The zero time means the counter has never been written.
func (c *Client) LastUpdated(ctx context.Context) (time.Time, error) {
	ms, err := c.backend.ReadScalar(ctx, KeyLastUpdated)
	if err != nil {
		return time.Time{}, fmt.Errorf("read last updated: %w", err)
	}
	if ms == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}

// DailyCounts reads the per-UTC-day totals keyed by yyyy-mm-dd.
func (c *Client) DailyCounts(ctx context.Context) (m map[string]int64, err error) {
	defer func(start time.Time) { c.observe("read_daily", start, err) }(time.Now())
	m, err = c.backend.ReadMap(ctx, KeyDailyCounts)
	if err != nil {
		return nil, fmt.Errorf("read daily counts: %w", err)
	}
	return m, nil
}

// IncrementGlobal atomically adds delta to the global count and stamps
// lastUpdated. Once the increment has been applied the call succeeds even
// if the stamp fails, so callers never re-send an applied delta.
func (c *Client) IncrementGlobal(ctx context.Context, delta int64) (err error) {
	defer func(start time.Time) { c.observe("increment_global", start, err) }(time.Now())
	if err = c.backend.Increment(ctx, KeyGlobalCount, delta); err != nil {
		return fmt.Errorf("increment global count: %w", err)
	}
	if terr := c.backend.Touch(ctx, KeyLastUpdated); terr != nil {
		c.log.Warn().Err(terr).Msg("stamp lastUpdated failed")
	}
	return nil
}

// IncrementDaily atomically adds delta to the UTC day containing at.
func (c *Client) IncrementDaily(ctx context.Context, delta int64, at time.Time) (err error) {
	defer func(start time.Time) { c.observe("increment_daily", start, err) }(time.Now())
	key := DailyKey(history.UTCDateKey(at))
	if err = c.backend.Increment(ctx, key, delta); err != nil {
		return fmt.Errorf("increment %s: %w", key, err)
	}
	return nil
}

// IncrementGlobalAndDaily applies delta to the global count and then to
// today's UTC bucket. Only a global failure is returned. A daily failure is
// logged and dropped: the global delta is already applied and retrying the
// pair would double count it.
func (c *Client) IncrementGlobalAndDaily(ctx context.Context, delta int64) error {
	if err := c.IncrementGlobal(ctx, delta); err != nil {
		return err
	}
	if err := c.IncrementDaily(ctx, delta, c.now()); err != nil {
		c.log.Error().Err(err).Int64("delta", delta).Msg("daily count increment failed; chart may undercount")
	}
	return nil
}

// SubscribeGlobal delivers the global count now and after every change
// until the returned function is called. A broken stream is re-established
// and the current value re-fetched. Delivery needs Serve to be running.
func (c *Client) SubscribeGlobal(fn func(int64)) (unsubscribe func()) {
	sub := &subscription{name: "global-count", key: KeyGlobalCount}
	deliver := func(v int64) {
		if !sub.stopped.Load() {
			fn(v)
		}
	}
	sub.baseline = func(ctx context.Context) error {
		v, err := c.backend.ReadScalar(ctx, KeyGlobalCount)
		if err != nil {
			return err
		}
		deliver(v)
		return nil
	}
	sub.watch = func(ctx context.Context) error {
		return c.backend.Watch(ctx, KeyGlobalCount, deliver)
	}
	return c.subscribe(sub)
}

// SubscribeDaily is SubscribeGlobal for the daily map.
func (c *Client) SubscribeDaily(fn func(map[string]int64)) (unsubscribe func()) {
	sub := &subscription{name: "daily-counts", key: KeyDailyCounts}
	deliver := func(m map[string]int64) {
		if !sub.stopped.Load() {
			fn(m)
		}
	}
	sub.baseline = func(ctx context.Context) error {
		m, err := c.backend.ReadMap(ctx, KeyDailyCounts)
		if err != nil {
			return err
		}
		deliver(m)
		return nil
	}
	sub.watch = func(ctx context.Context) error {
		return c.backend.WatchMap(ctx, KeyDailyCounts, deliver)
	}
	return c.subscribe(sub)
}

func (c *Client) subscribe(sub *subscription) func() {
	token := c.subs.Add(sub)
	return func() {
		if sub.stopped.Swap(true) {
			return
		}
		if err := c.subs.Remove(token); err != nil {
			c.log.Debug().Err(err).Str("subscription", sub.name).Msg("remove subscription")
		}
	}
}

// Serve runs the subscriptions until ctx is done.
func (c *Client) Serve(ctx context.Context) error {
	return c.subs.Serve(ctx)
}

func (c *Client) String() string { return "remote-client" }

func (c *Client) Close() error {
	return c.backend.Close()
}

type subscription struct {
	name     string
	key      string
	baseline func(ctx context.Context) error
	watch    func(ctx context.Context) error
	stopped  atomic.Bool
	runs     atomic.Int64
}

func (s *subscription) Serve(ctx context.Context) error {
	if s.runs.Add(1) > 1 {
		metrics.SubscriptionRestarts.WithLabelValues(s.key).Inc()
	}
	if err := s.baseline(ctx); err != nil {
		if errors.Is(err, ErrClosed) {
			return suture.ErrDoNotRestart
		}
		return fmt.Errorf("%s baseline: %w", s.name, err)
	}
	err := s.watch(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, ErrClosed) {
		return suture.ErrDoNotRestart
	}
	if err == nil {
		err = ErrStreamEnded
	}
	return fmt.Errorf("%s watch: %w", s.name, err)
}

func (s *subscription) String() string { return s.name }
