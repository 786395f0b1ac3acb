// Package history records counting events and turns them into day buckets,
// chart scales and summary statistics.
package history

import "time"

// DateLayout is the yyyy-mm-dd day key format.
const DateLayout = "2006-01-02"

// localZone is the device calendar; replaced in tests.
var localZone = time.Local

// LocalDateKey is the device-local calendar day of t. Personal history is
// bucketed with this key.
func LocalDateKey(t time.Time) string {
	return t.In(localZone).Format(DateLayout)
}

// UTCDateKey is the UTC calendar day of t. Remote daily counts are keyed
// with this so every device agrees on day boundaries.
func UTCDateKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// startOfDay is midnight of t's day in t's location.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// dayBounds returns the closed interval [00:00:00.000, 23:59:59.999] of the
// day containing t.
func dayBounds(t time.Time) (start, end time.Time) {
	start = startOfDay(t)
	end = start.AddDate(0, 0, 1).Add(-time.Millisecond)
	return start, end
}

// LastDays is the closed interval covering the last n device-local days,
// today included.
func LastDays(n int, now time.Time) (from, to time.Time) {
	now = now.In(localZone)
	_, to = dayBounds(now)
	from = startOfDay(now).AddDate(0, 0, -(max(n, 1) - 1))
	return from, to
}
