package history

import (
	"math"
	"time"

	"github.com/sadopc/tally/internal/store"
)

// Stats summarises the retained history.
type Stats struct {
	TotalCount        int64 `json:"total_count"`
	TotalSessions     int   `json:"total_sessions"`
	AveragePerSession int64 `json:"average_per_session"`
	TodayCount        int64 `json:"today"`
	WeekCount         int64 `json:"week"` // week starts on Sunday
	MonthCount        int64 `json:"month"`
}

// ComputeStats summarises entries relative to now, using now's location for
// day, week and month boundaries.
func ComputeStats(entries []store.HistoryEntry, now time.Time) Stats {
	today := startOfDay(now)
	week := today.AddDate(0, 0, -int(today.Weekday()))
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	var st Stats
	for _, e := range entries {
		st.TotalCount += e.Count
		st.TotalSessions++
		if !e.Timestamp.Before(today) {
			st.TodayCount += e.Count
		}
		if !e.Timestamp.Before(week) {
			st.WeekCount += e.Count
		}
		if !e.Timestamp.Before(month) {
			st.MonthCount += e.Count
		}
	}
	if st.TotalSessions > 0 {
		st.AveragePerSession = int64(math.Round(float64(st.TotalCount) / float64(st.TotalSessions)))
	}
	return st
}
