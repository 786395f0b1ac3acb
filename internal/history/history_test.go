package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadopc/tally/internal/store"
)

var ist = time.FixedZone("IST", 5*3600+1800)

// inZone makes z the device calendar for the rest of the test.
func inZone(t *testing.T, z *time.Location) {
	t.Helper()
	prev := localZone
	localZone = z
	t.Cleanup(func() { localZone = prev })
}

func entry(count int64, at time.Time) store.HistoryEntry {
	return NewEntry(count, store.EntryIncrement, at)
}

// ============================================================
// Day keys
// ============================================================

func TestUTCDateKeyDiffersFromLocalAcrossMidnight(t *testing.T) {
	// 02:00 IST on the 10th is still the 9th in UTC.
	at := time.Date(2025, 3, 10, 2, 0, 0, 0, ist)
	assert.Equal(t, "2025-03-09", UTCDateKey(at))
	assert.Equal(t, "2025-03-10", at.Format(DateLayout))
}

func TestLocalDateKeyUsesDeviceZone(t *testing.T) {
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, at.In(time.Local).Format(DateLayout), LocalDateKey(at))

	inZone(t, ist)
	late := time.Date(2025, 3, 9, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-10", LocalDateKey(late))
	assert.Equal(t, "2025-03-09", UTCDateKey(late))
}

// ============================================================
// Buckets
// ============================================================

func TestBuildLastNDaysZeroFilled(t *testing.T) {
	inZone(t, ist)
	now := time.Date(2025, 3, 12, 15, 0, 0, 0, ist) // Wednesday
	entries := []store.HistoryEntry{
		entry(3, now),
		entry(2, now.AddDate(0, 0, -2)),
	}

	b := BuildLastNDays(entries, 7, now)
	require.Len(t, b, 7)
	assert.Equal(t, "2025-03-06", b[0].Key)
	assert.Equal(t, "Thu", b[0].Label)
	assert.Equal(t, "2025-03-12", b[6].Key)
	assert.Equal(t, "Wed", b[6].Label)
	assert.Equal(t, []int64{0, 0, 0, 0, 2, 0, 3}, Counts(b))
}

func TestBuildLastNDaysClosedIntervals(t *testing.T) {
	inZone(t, ist)
	now := time.Date(2025, 3, 12, 15, 0, 0, 0, ist)
	dayStart := time.Date(2025, 3, 12, 0, 0, 0, 0, ist)
	entries := []store.HistoryEntry{
		// first and last millisecond of today
		entry(1, dayStart),
		entry(1000, dayStart.Add(24*time.Hour-time.Millisecond)),
		// last millisecond of yesterday
		entry(10, dayStart.Add(-time.Millisecond)),
		// outside the window
		entry(100, dayStart.AddDate(0, 0, -7)),
	}

	b := BuildLastNDays(entries, 7, now)
	assert.Equal(t, int64(1001), b[6].Count)
	assert.Equal(t, int64(10), b[5].Count)
	var sum int64
	for _, c := range Counts(b) {
		sum += c
	}
	assert.Equal(t, int64(1011), sum)
}

func TestBuildLastNDaysUsesDeviceCalendar(t *testing.T) {
	inZone(t, ist)
	// 20:00 UTC on the 9th is already the 10th on the device.
	now := time.Date(2025, 3, 9, 20, 0, 0, 0, time.UTC)

	b := BuildLastNDays([]store.HistoryEntry{entry(2, now)}, 3, now)
	assert.Equal(t, []string{"2025-03-08", "2025-03-09", "2025-03-10"}, []string{b[0].Key, b[1].Key, b[2].Key})
	assert.Equal(t, LocalDateKey(now), b[2].Key)
	assert.Equal(t, int64(2), b[2].Count)
}

func TestBuildLastNDaysNonPositive(t *testing.T) {
	assert.Nil(t, BuildLastNDays(nil, 0, time.Now()))
}

func TestReconcileCreditsLastBucket(t *testing.T) {
	inZone(t, ist)
	now := time.Date(2025, 3, 12, 15, 0, 0, 0, ist)
	b := BuildLastNDays([]store.HistoryEntry{entry(5, now)}, 7, now)

	b = Reconcile(b, 5, 12)
	assert.Equal(t, []int64{0, 0, 0, 0, 0, 0, 12}, Counts(b))

	// No change when the log accounts for everything.
	b = Reconcile(b, 20, 12)
	assert.Equal(t, int64(12), b[6].Count)
}

func TestGlobalLastNDays(t *testing.T) {
	// 01:00 IST on the 13th is 19:30 UTC on the 12th.
	now := time.Date(2025, 3, 13, 1, 0, 0, 0, ist)
	daily := map[string]int64{
		"2025-03-12": 40,
		"2025-03-10": 7,
		"2025-03-13": 999, // tomorrow in UTC, excluded
		"2025-03-01": 5,   // too old
	}

	b := GlobalLastNDays(daily, 7, now)
	require.Len(t, b, 7)
	assert.Equal(t, "2025-03-06", b[0].Key)
	assert.Equal(t, "2025-03-12", b[6].Key)
	assert.Equal(t, []int64{0, 0, 0, 0, 7, 0, 40}, Counts(b))
}

// ============================================================
// Scales
// ============================================================

func TestNiceMax(t *testing.T) {
	tests := []struct {
		in   []int64
		want int64
	}{
		{nil, 100},
		{[]int64{0, 0}, 1},
		{[]int64{1}, 100},
		{[]int64{100}, 100},
		{[]int64{101, 3}, 200},
		{[]int64{250, 999}, 1000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NiceMax(tt.in), "%v", tt.in)
	}
}

func TestNiceMax125(t *testing.T) {
	tests := []struct {
		in   []int64
		want int64
	}{
		{nil, 1},
		{[]int64{0}, 1},
		{[]int64{-4}, 1},
		{[]int64{1}, 1},
		{[]int64{2}, 2},
		{[]int64{3}, 5},
		{[]int64{7}, 10},
		{[]int64{10}, 10},
		{[]int64{11}, 20},
		{[]int64{150}, 200},
		{[]int64{4999, 12}, 5000},
		{[]int64{5001}, 10000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NiceMax125(tt.in), "%v", tt.in)
	}
}

// ============================================================
// Stats
// ============================================================

func TestComputeStats(t *testing.T) {
	// Wednesday 12 March; week starts Sunday 9 March.
	now := time.Date(2025, 3, 12, 15, 0, 0, 0, ist)
	entries := []store.HistoryEntry{
		entry(10, now),
		entry(5, now.AddDate(0, 0, -1)),   // Tue, this week
		entry(4, now.AddDate(0, 0, -4)),   // Sat 8th, last week, this month
		entry(100, now.AddDate(0, -1, 0)), // last month
	}

	st := ComputeStats(entries, now)
	assert.Equal(t, int64(119), st.TotalCount)
	assert.Equal(t, 4, st.TotalSessions)
	assert.Equal(t, int64(30), st.AveragePerSession) // 29.75 rounds up
	assert.Equal(t, int64(10), st.TodayCount)
	assert.Equal(t, int64(15), st.WeekCount)
	assert.Equal(t, int64(19), st.MonthCount)
}

func TestComputeStatsEmpty(t *testing.T) {
	assert.Equal(t, Stats{}, ComputeStats(nil, time.Now()))
}

// ============================================================
// Log and aggregator
// ============================================================

type fixedCounter int64

func (c fixedCounter) Count() int64 { return int64(c) }

type dailyFunc func(ctx context.Context) (map[string]int64, error)

func (f dailyFunc) DailyCounts(ctx context.Context) (map[string]int64, error) { return f(ctx) }

func newTestLog(t *testing.T, max int) *Log {
	t.Helper()
	s, err := store.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewLog(s, max)
}

func TestLogRecordAndRecent(t *testing.T) {
	l := newTestLog(t, 3)
	base := time.Date(2025, 3, 12, 9, 0, 0, 0, ist)
	step := 0
	l.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	for i := 0; i < 4; i++ {
		_, err := l.Record(int64(i+1), store.EntryIncrement)
		require.NoError(t, err)
	}
	bulk, err := l.Record(500, store.EntryBulk)
	require.NoError(t, err)
	assert.NotEmpty(t, bulk.ID)

	recent, err := l.Recent(0)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, bulk.ID, recent[0].ID)
	assert.Equal(t, []int64{500, 4, 3}, []int64{recent[0].Count, recent[1].Count, recent[2].Count})

	total, err := l.Total()
	require.NoError(t, err)
	assert.Equal(t, int64(507), total)
}

func TestLogRange(t *testing.T) {
	inZone(t, ist)
	l := newTestLog(t, 50)
	now := time.Date(2025, 3, 12, 15, 0, 0, 0, ist)
	for i, at := range []time.Time{
		now.AddDate(0, 0, -3),
		now.AddDate(0, 0, -1),
		time.Date(2025, 3, 12, 0, 0, 0, 0, ist),
		now,
	} {
		l.now = func() time.Time { return at }
		_, err := l.Record(int64(i+1), store.EntryIncrement)
		require.NoError(t, err)
	}

	from, to := LastDays(2, now)
	assert.Equal(t, time.Date(2025, 3, 11, 0, 0, 0, 0, ist), from)
	assert.Equal(t, time.Date(2025, 3, 12, 23, 59, 59, 999_000_000, ist), to)

	got, err := l.Range(from, to)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{4, 3, 2}, []int64{got[0].Count, got[1].Count, got[2].Count})

	from, to = LastDays(0, now)
	got, err = l.Range(from, to)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestLogRecordRejectsNonPositive(t *testing.T) {
	l := newTestLog(t, 50)
	_, err := l.Record(0, store.EntryBulk)
	require.Error(t, err)
}

func TestAggregatorPersonalChartReconciles(t *testing.T) {
	inZone(t, ist)
	l := newTestLog(t, 50)
	now := time.Date(2025, 3, 12, 15, 0, 0, 0, ist)
	l.now = func() time.Time { return now.AddDate(0, 0, -1) }
	_, err := l.Record(4, store.EntryIncrement)
	require.NoError(t, err)

	a := NewAggregator(l, fixedCounter(10), nil)
	a.now = func() time.Time { return now }

	b, err := a.PersonalChart(7)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 0, 0, 0, 0, 4, 6}, Counts(b))
}

func TestAggregatorGlobalChart(t *testing.T) {
	now := time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC)
	a := NewAggregator(newTestLog(t, 50), fixedCounter(0), dailyFunc(func(context.Context) (map[string]int64, error) {
		return map[string]int64{"2025-03-12": 9}, nil
	}))
	a.now = func() time.Time { return now }

	b, err := a.GlobalChart(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(9), b[6].Count)

	a.daily = dailyFunc(func(context.Context) (map[string]int64, error) {
		return nil, errors.New("offline")
	})
	_, err = a.GlobalChart(context.Background(), 7)
	require.Error(t, err)
}
