package history

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sadopc/tally/internal/store"
)

// DefaultMaxEntries bounds the retained history.
const DefaultMaxEntries = 50

// Store is the persistence the event log needs.
type Store interface {
	AppendHistory(e store.HistoryEntry, maxEntries int) error
	ListHistory(f store.HistoryFilter) ([]store.HistoryEntry, error)
	HistoryTotal() (int64, error)
	ClearHistory() error
}

// Log is the bounded, append-only record of counting events.
type Log struct {
	store      Store
	maxEntries int
	now        func() time.Time
}

func NewLog(s Store, maxEntries int) *Log {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Log{store: s, maxEntries: maxEntries, now: time.Now}
}

// NewEntry builds an entry with a fresh id and millisecond timestamp.
func NewEntry(count int64, typ store.EntryType, at time.Time) store.HistoryEntry {
	return store.HistoryEntry{
		ID:        uuid.NewString(),
		Count:     count,
		Type:      typ,
		Timestamp: time.UnixMilli(at.UnixMilli()),
	}
}

// Record appends a new entry and evicts the oldest beyond the cap.
func (l *Log) Record(count int64, typ store.EntryType) (store.HistoryEntry, error) {
	e := NewEntry(count, typ, l.now())
	if err := l.store.AppendHistory(e, l.maxEntries); err != nil {
		return store.HistoryEntry{}, fmt.Errorf("record history: %w", err)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first. limit <= 0 returns all.
func (l *Log) Recent(limit int) ([]store.HistoryEntry, error) {
	return l.store.ListHistory(store.HistoryFilter{Limit: limit})
}

// Range returns entries with timestamps in [from, to].
func (l *Log) Range(from, to time.Time) ([]store.HistoryEntry, error) {
	return l.store.ListHistory(store.HistoryFilter{From: &from, To: &to})
}

func (l *Log) Total() (int64, error) {
	return l.store.HistoryTotal()
}

func (l *Log) Clear() error {
	return l.store.ClearHistory()
}

func (l *Log) Stats() (Stats, error) {
	entries, err := l.store.ListHistory(store.HistoryFilter{})
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(entries, l.now()), nil
}
