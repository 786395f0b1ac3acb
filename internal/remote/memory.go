package remote

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryBackend is a process-local Backend. It backs the offline demo mode
// and tests.
type MemoryBackend struct {
	mu       sync.Mutex
	values   map[string]int64
	watchers map[int]*memWatcher
	nextID   int
	closed   chan struct{}
	once     sync.Once
	now      func() time.Time
}

type memWatcher struct {
	key    string
	prefix bool
	notify chan struct{}
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		values:   make(map[string]int64),
		watchers: make(map[int]*memWatcher),
		closed:   make(chan struct{}),
		now:      time.Now,
	}
}

func (m *MemoryBackend) isClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

func (m *MemoryBackend) ReadScalar(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if m.isClosed() {
		return 0, ErrClosed
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *MemoryBackend) ReadMap(ctx context.Context, prefix string) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.isClosed() {
		return nil, ErrClosed
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readMapLocked(prefix), nil
}

func (m *MemoryBackend) readMapLocked(prefix string) map[string]int64 {
	out := make(map[string]int64)
	for k, v := range m.values {
		if p, member, ok := SplitKey(k); ok && p == prefix {
			out[member] = v
		}
	}
	return out
}

func (m *MemoryBackend) Increment(ctx context.Context, key string, delta int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.isClosed() {
		return ErrClosed
	}
	m.mu.Lock()
	m.values[key] += delta
	m.notifyLocked(key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Touch(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.isClosed() {
		return ErrClosed
	}
	m.mu.Lock()
	m.values[key] = m.now().UnixMilli()
	m.notifyLocked(key)
	m.mu.Unlock()
	return nil
}

// must hold mu
func (m *MemoryBackend) notifyLocked(key string) {
	for _, w := range m.watchers {
		match := w.key == key
		if w.prefix {
			match = strings.HasPrefix(key, w.key+"/")
		}
		if !match {
			continue
		}
		select {
		case w.notify <- struct{}{}:
		default:
		}
	}
}

func (m *MemoryBackend) register(key string, prefix bool) (int, *memWatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := &memWatcher{key: key, prefix: prefix, notify: make(chan struct{}, 1)}
	w.notify <- struct{}{}
	id := m.nextID
	m.nextID++
	m.watchers[id] = w
	return id, w
}

func (m *MemoryBackend) unregister(id int) {
	m.mu.Lock()
	delete(m.watchers, id)
	m.mu.Unlock()
}

func (m *MemoryBackend) Watch(ctx context.Context, key string, fn func(int64)) error {
	if m.isClosed() {
		return ErrClosed
	}
	id, w := m.register(key, false)
	defer m.unregister(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.closed:
			return ErrClosed
		case <-w.notify:
			m.mu.Lock()
			v := m.values[key]
			m.mu.Unlock()
			fn(v)
		}
	}
}

func (m *MemoryBackend) WatchMap(ctx context.Context, prefix string, fn func(map[string]int64)) error {
	if m.isClosed() {
		return ErrClosed
	}
	id, w := m.register(prefix, true)
	defer m.unregister(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.closed:
			return ErrClosed
		case <-w.notify:
			m.mu.Lock()
			snap := m.readMapLocked(prefix)
			m.mu.Unlock()
			fn(snap)
		}
	}
}

// Close ends all watches and fails later calls.
func (m *MemoryBackend) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}
