// Package counter owns the device's personal running total.
package counter

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sadopc/tally/internal/logging"
	"github.com/sadopc/tally/internal/metrics"
	"github.com/sadopc/tally/internal/store"
)

// ErrInvalidDelta is returned for non-positive increments.
var ErrInvalidDelta = errors.New("counter: delta must be positive")

// ErrOverflow is returned when an increment would overflow the count.
var ErrOverflow = errors.New("counter: count would overflow")

// KV is the durable string store the count is saved in.
type KV interface {
	GetString(key string) (value string, ok bool, err error)
	SetString(key, value string) error
}

// Manager holds the personal count in memory and persists it in the
// background. Increments are visible immediately; a single writer goroutine
// saves the latest value, so an older value never overwrites a newer one.
// Save failures are logged and the in-memory count is kept.
type Manager struct {
	kv  KV
	log zerolog.Logger

	mu      sync.Mutex
	count   int64
	version uint64 // bumped by every increment

	saved   uint64 // version last written; touched only by the writer
	dirty   chan struct{}
	flushes chan chan struct{}
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func New(kv KV) *Manager {
	m := &Manager{
		kv:      kv,
		log:     logging.Component("counter"),
		dirty:   make(chan struct{}, 1),
		flushes: make(chan chan struct{}),
		done:    make(chan struct{}),
	}
	m.wg.Add(1)
	go m.run()
	return m
}

// Load reads the stored count into memory and returns it. A missing,
// unparseable or unreadable value loads as zero.
func (m *Manager) Load() int64 {
	var n int64
	v, ok, err := m.kv.GetString(store.KeyPersonalCount)
	switch {
	case err != nil:
		m.log.Error().Err(err).Msg("load personal count; starting from zero")
	case ok:
		if n, err = strconv.ParseInt(v, 10, 64); err != nil || n < 0 {
			m.log.Warn().Str("value", v).Msg("stored personal count unparseable; starting from zero")
			n = 0
		}
	}

	m.mu.Lock()
	m.count = n
	m.mu.Unlock()
	metrics.PersonalCount.Set(float64(n))
	return n
}

// Count returns the current in-memory count.
func (m *Manager) Count() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Increment adds delta and schedules a save. It returns the new count.
func (m *Manager) Increment(delta int64) (int64, error) {
	if delta <= 0 {
		return m.Count(), ErrInvalidDelta
	}
	m.mu.Lock()
	if m.count > math.MaxInt64-delta {
		n := m.count
		m.mu.Unlock()
		return n, ErrOverflow
	}
	m.count += delta
	m.version++
	n := m.count
	m.mu.Unlock()

	metrics.PersonalCount.Set(float64(n))
	select {
	case m.dirty <- struct{}{}:
	default:
	}
	return n, nil
}

// Flush waits until the latest count has been handed to the store.
func (m *Manager) Flush(ctx context.Context) error {
	reply := make(chan struct{})
	select {
	case m.flushes <- reply:
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close saves the latest count and stops the writer.
func (m *Manager) Close() error {
	m.once.Do(func() { close(m.done) })
	m.wg.Wait()
	return nil
}

func (m *Manager) run() {
	defer m.wg.Done()
	for {
		select {
		case <-m.dirty:
			m.persist()
		case reply := <-m.flushes:
			m.persist()
			close(reply)
		case <-m.done:
			m.persist()
			return
		}
	}
}

func (m *Manager) persist() {
	m.mu.Lock()
	n, v := m.count, m.version
	m.mu.Unlock()
	if v == m.saved {
		return
	}
	if err := m.kv.SetString(store.KeyPersonalCount, strconv.FormatInt(n, 10)); err != nil {
		m.log.Error().Err(err).Int64("count", n).Msg("save personal count")
		return
	}
	m.saved = v
}
