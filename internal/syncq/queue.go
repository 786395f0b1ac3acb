// Package syncq delivers locally accepted increments to the shared global
// count. Deltas that cannot be applied are folded into one durable pending
// total and retried as a single increment on every flush tick.
package syncq

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/sadopc/tally/internal/logging"
	"github.com/sadopc/tally/internal/metrics"
	"github.com/sadopc/tally/internal/store"
)

// Outcome reports what happened to a delta.
type Outcome int

const (
	// Noop means there was nothing to do, or another flush was in flight.
	Noop Outcome = iota
	// Applied means the delta reached the global count.
	Applied
	// QueuedForRetry means the delta is saved locally and will be retried.
	QueuedForRetry
	// Rejected means the delta was invalid and nothing changed.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Noop:
		return "noop"
	case Applied:
		return "applied"
	case QueuedForRetry:
		return "queued"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Remote applies a delta to the global count and today's daily count.
type Remote interface {
	IncrementGlobalAndDaily(ctx context.Context, delta int64) error
}

// KV is the durable store for the pending total.
type KV interface {
	GetString(key string) (value string, ok bool, err error)
	SetString(key, value string) error
}

type Config struct {
	// FlushInterval is the retry period.
	FlushInterval time.Duration
	// RemoteTimeout bounds each remote call.
	RemoteTimeout time.Duration
	// BreakerFailures consecutive failures open the circuit.
	BreakerFailures uint32
	// BreakerTimeout is how long the circuit stays open before probing.
	BreakerTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		FlushInterval:   5 * time.Second,
		RemoteTimeout:   10 * time.Second,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// Stats is a snapshot of queue activity.
type Stats struct {
	Pending      int64
	AppliedTotal int64
	QueuedTotal  int64
	LastError    string
	LastErrorAt  time.Time
	LastFlush    time.Time
	LastSynced   time.Time
	Breaker      string
}

type Queue struct {
	remote Remote
	kv     KV
	cfg    Config
	cb     *gobreaker.CircuitBreaker[struct{}]
	log    zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending int64
	stats   Stats

	persistMu sync.Mutex
	flushing  atomic.Bool
}

// New restores the pending total from kv and returns a queue. Run or Serve
// must be started for automatic retries.
func New(r Remote, kv KV, cfg Config) *Queue {
	def := DefaultConfig()
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = def.RemoteTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}

	q := &Queue{
		remote: r,
		kv:     kv,
		cfg:    cfg,
		log:    logging.Component("sync"),
		now:    time.Now,
	}
	q.cb = newBreaker("global-count", cfg, q.log)
	q.pending = q.readInt(store.KeyPendingIncrements)
	if ms := q.readInt(store.KeyLastSynced); ms > 0 {
		q.stats.LastSynced = time.UnixMilli(ms)
	}
	metrics.SyncPending.Set(float64(q.pending))
	if q.pending > 0 {
		q.log.Info().Int64("pending", q.pending).Msg("restored pending increments")
	}
	return q
}

func (q *Queue) readInt(key string) int64 {
	v, ok, err := q.kv.GetString(key)
	if err != nil {
		q.log.Error().Err(err).Str("key", key).Msg("read sync state; using zero")
		return 0
	}
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		q.log.Warn().Str("key", key).Str("value", v).Msg("unparseable sync state; using zero")
		return 0
	}
	return n
}

// Submit tries to apply delta right away. If the remote call fails the
// delta is added to the pending total for the next flush.
func (q *Queue) Submit(ctx context.Context, delta int64) Outcome {
	if delta <= 0 {
		metrics.SyncOutcomes.WithLabelValues("submit", Rejected.String()).Inc()
		return Rejected
	}
	out := Applied
	if err := q.apply(ctx, delta); err != nil {
		q.requeue(delta, err)
		out = QueuedForRetry
	}
	metrics.SyncOutcomes.WithLabelValues("submit", out.String()).Inc()
	return out
}

// Flush sends the whole pending total as one increment. The total is
// zeroed and saved before the call; on failure the amount is added back to
// whatever has accumulated meanwhile. Only one flush runs at a time.
func (q *Queue) Flush(ctx context.Context) Outcome {
	if !q.flushing.CompareAndSwap(false, true) {
		return Noop
	}
	defer q.flushing.Store(false)

	q.mu.Lock()
	toFlush := q.pending
	if toFlush <= 0 {
		q.mu.Unlock()
		return Noop
	}
	q.pending = 0
	q.stats.LastFlush = q.now()
	q.mu.Unlock()
	q.persistPending()

	out := Applied
	if err := q.apply(ctx, toFlush); err != nil {
		q.requeue(toFlush, err)
		out = QueuedForRetry
	} else {
		q.log.Info().Int64("delta", toFlush).Msg("flushed pending increments")
	}
	metrics.SyncOutcomes.WithLabelValues("flush", out.String()).Inc()
	return out
}

// apply makes one bounded remote call through the circuit breaker.
func (q *Queue) apply(ctx context.Context, delta int64) error {
	cctx, cancel := context.WithTimeout(ctx, q.cfg.RemoteTimeout)
	defer cancel()

	_, err := q.cb.Execute(func() (struct{}, error) {
		return struct{}{}, q.remote.IncrementGlobalAndDaily(cctx, delta)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("remote unavailable: %w", err)
		}
		return err
	}

	now := q.now()
	q.mu.Lock()
	q.stats.AppliedTotal, _ = addCapped(q.stats.AppliedTotal, delta)
	q.stats.LastSynced = now
	q.mu.Unlock()
	if err := q.kv.SetString(store.KeyLastSynced, strconv.FormatInt(now.UnixMilli(), 10)); err != nil {
		q.log.Warn().Err(err).Msg("save last synced time")
	}
	return nil
}

func (q *Queue) requeue(delta int64, cause error) {
	q.mu.Lock()
	var lost int64
	q.pending, lost = addCapped(q.pending, delta)
	pending := q.pending
	q.stats.QueuedTotal, _ = addCapped(q.stats.QueuedTotal, delta)
	q.stats.LastError = cause.Error()
	q.stats.LastErrorAt = q.now()
	q.mu.Unlock()

	q.persistPending()
	if lost > 0 {
		q.log.Error().Int64("lost", lost).Int64("pending", pending).Msg("pending total at maximum; excess not queued")
	}
	q.log.Warn().Err(cause).Int64("delta", delta).Int64("pending", pending).Msg("remote increment failed; queued for retry")
}

// persistPending saves the current pending total. Writes are serialised and
// each one reads the latest value, so the last write always wins with the
// newest total.
func (q *Queue) persistPending() {
	q.persistMu.Lock()
	defer q.persistMu.Unlock()

	q.mu.Lock()
	p := q.pending
	q.mu.Unlock()

	metrics.SyncPending.Set(float64(p))
	if err := q.kv.SetString(store.KeyPendingIncrements, strconv.FormatInt(p, 10)); err != nil {
		q.log.Error().Err(err).Int64("pending", p).Msg("save pending increments")
	}
}

// Pending returns the total waiting to be applied.
func (q *Queue) Pending() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	st := q.stats
	st.Pending = q.pending
	q.mu.Unlock()
	st.Breaker = q.cb.State().String()
	return st
}

// Serve flushes once immediately and then every FlushInterval until ctx is
// done. It satisfies suture.Service.
func (q *Queue) Serve(ctx context.Context) error {
	ticker := time.NewTicker(q.cfg.FlushInterval)
	defer ticker.Stop()

	q.Flush(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			q.Flush(ctx)
		}
	}
}

func (q *Queue) String() string { return "sync-queue" }

// addCapped adds two non-negative totals, stopping at math.MaxInt64. It
// returns the sum and the part of b that did not fit.
func addCapped(a, b int64) (sum, lost int64) {
	if a > math.MaxInt64-b {
		return math.MaxInt64, b - (math.MaxInt64 - a)
	}
	return a + b, 0
}
