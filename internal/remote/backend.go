// Package remote is the shared aggregate store: one global counter, a
// last-updated server timestamp and a map of per-UTC-day counters.
package remote

import (
	"context"
	"errors"
	"strings"
)

// Keyspace.
const (
	KeyGlobalCount = "globalCount"
	KeyLastUpdated = "lastUpdated"
	KeyDailyCounts = "dailyCounts"
)

var (
	// ErrClosed is returned once a backend has been closed.
	ErrClosed = errors.New("remote: backend closed")

	// ErrStreamEnded is returned when a watch stream stops without the
	// caller cancelling it. Subscribers resubscribe on it.
	ErrStreamEnded = errors.New("remote: watch stream ended")
)

// Backend is a key/value store with server-side atomic increments.
//
// Scalar keys hold an integer. A map is a family of scalars sharing a
// prefix, addressed as "prefix/member".
type Backend interface {
	// ReadScalar returns the value at key, or 0 if it has never been set.
	ReadScalar(ctx context.Context, key string) (int64, error)

	// ReadMap returns every member under prefix keyed by member name.
	ReadMap(ctx context.Context, prefix string) (map[string]int64, error)

	// Increment atomically adds delta to key, creating it at 0 first.
	Increment(ctx context.Context, key string, delta int64) error

	// Touch sets key to the server's current time in epoch milliseconds.
	Touch(ctx context.Context, key string) error

	// Watch calls fn with the value of key once the watch is established
	// and after each change. It blocks until ctx is done or the stream
	// breaks.
	Watch(ctx context.Context, key string, fn func(int64)) error

	// WatchMap is Watch for a whole map.
	WatchMap(ctx context.Context, prefix string, fn func(map[string]int64)) error

	Close() error
}

// MemberKey addresses one member of a map.
func MemberKey(prefix, member string) string {
	return prefix + "/" + member
}

// SplitKey separates a member key into its map prefix and member. ok is
// false for scalar keys.
func SplitKey(key string) (prefix, member string, ok bool) {
	return strings.Cut(key, "/")
}

// DailyKey is the member key of one UTC day in the daily map.
func DailyKey(utcDate string) string {
	return MemberKey(KeyDailyCounts, utcDate)
}
