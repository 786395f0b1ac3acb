// Package remotetest provides a fault-injecting remote.Backend for tests.
package remotetest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/sadopc/tally/internal/remote"
)

// ErrInjected is returned by every injected failure.
var ErrInjected = errors.New("remotetest: injected failure")

// Call is one applied increment.
type Call struct {
	Key   string
	Delta int64
}

// Flaky wraps a Backend and fails or stalls calls on demand.
type Flaky struct {
	remote.Backend

	mu         sync.Mutex
	down       bool
	failNext   int
	failPrefix string
	hang       bool
	attempts   int
	applied    []Call
}

// New wraps a fresh in-memory backend.
func New() *Flaky {
	return Wrap(remote.NewMemoryBackend())
}

func Wrap(b remote.Backend) *Flaky {
	return &Flaky{Backend: b}
}

// SetDown makes every read and write fail until cleared.
func (f *Flaky) SetDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

// FailNext fails the next n increments.
func (f *Flaky) FailNext(n int) {
	f.mu.Lock()
	f.failNext = n
	f.mu.Unlock()
}

// FailKeyPrefix fails increments whose key starts with p. Empty clears it.
func (f *Flaky) FailKeyPrefix(p string) {
	f.mu.Lock()
	f.failPrefix = p
	f.mu.Unlock()
}

// SetHang blocks increments until their context is done.
func (f *Flaky) SetHang(hang bool) {
	f.mu.Lock()
	f.hang = hang
	f.mu.Unlock()
}

// Attempts counts every Increment call, failed or not.
func (f *Flaky) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

// Applied returns the increments that reached the wrapped backend.
func (f *Flaky) Applied() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.applied...)
}

// AppliedTo returns the applied deltas for key, in order.
func (f *Flaky) AppliedTo(key string) []int64 {
	var out []int64
	for _, c := range f.Applied() {
		if c.Key == key {
			out = append(out, c.Delta)
		}
	}
	return out
}

func (f *Flaky) Increment(ctx context.Context, key string, delta int64) error {
	f.mu.Lock()
	f.attempts++
	hang := f.hang
	fail := f.down || (f.failPrefix != "" && strings.HasPrefix(key, f.failPrefix))
	if !fail && f.failNext > 0 {
		f.failNext--
		fail = true
	}
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if fail {
		return ErrInjected
	}
	if err := f.Backend.Increment(ctx, key, delta); err != nil {
		return err
	}
	f.mu.Lock()
	f.applied = append(f.applied, Call{Key: key, Delta: delta})
	f.mu.Unlock()
	return nil
}

func (f *Flaky) isDown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.down
}

func (f *Flaky) Touch(ctx context.Context, key string) error {
	if f.isDown() {
		return ErrInjected
	}
	return f.Backend.Touch(ctx, key)
}

func (f *Flaky) ReadScalar(ctx context.Context, key string) (int64, error) {
	if f.isDown() {
		return 0, ErrInjected
	}
	return f.Backend.ReadScalar(ctx, key)
}

func (f *Flaky) ReadMap(ctx context.Context, prefix string) (map[string]int64, error) {
	if f.isDown() {
		return nil, ErrInjected
	}
	return f.Backend.ReadMap(ctx, prefix)
}
