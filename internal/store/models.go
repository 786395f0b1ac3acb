package store

import "time"

// EntryType distinguishes single taps from bulk additions.
type EntryType string

const (
	EntryIncrement EntryType = "increment"
	EntryBulk      EntryType = "bulk"
)

func (t EntryType) Valid() bool {
	return t == EntryIncrement || t == EntryBulk
}

// HistoryEntry is an immutable record of one user action.
type HistoryEntry struct {
	ID        string
	Count     int64
	Type      EntryType
	Timestamp time.Time // millisecond precision
}

// HistoryFilter restricts history queries. Zero values mean unbounded.
type HistoryFilter struct {
	From  *time.Time
	To    *time.Time
	Limit int
}
