package history

import (
	"time"

	"github.com/sadopc/tally/internal/store"
)

// DayBucket is one day of a chart.
type DayBucket struct {
	Key   string // yyyy-mm-dd
	Label string // three-letter weekday
	Start time.Time
	End   time.Time
	Count int64
}

// BuildLastNDays returns n buckets, oldest first, ending with the device-local
// day that contains now. Each bucket sums the entries whose timestamp falls
// inside its closed day interval. Days without entries are present with a
// zero count.
func BuildLastNDays(entries []store.HistoryEntry, n int, now time.Time) []DayBucket {
	if n <= 0 {
		return nil
	}
	now = now.In(localZone)
	buckets := make([]DayBucket, n)
	for i := 0; i < n; i++ {
		day := startOfDay(now).AddDate(0, 0, i-(n-1))
		start, end := dayBounds(day)
		buckets[i] = DayBucket{
			Key:   LocalDateKey(start),
			Label: start.Weekday().String()[:3],
			Start: start,
			End:   end,
		}
	}
	for _, e := range entries {
		for i := range buckets {
			if !e.Timestamp.Before(buckets[i].Start) && !e.Timestamp.After(buckets[i].End) {
				buckets[i].Count += e.Count
				break
			}
		}
	}
	return buckets
}

// Reconcile credits untracked counts to the most recent bucket. When the
// personal count exceeds the sum of all logged entries (entries were evicted
// or predate the log), the difference is added to the last bucket only.
func Reconcile(buckets []DayBucket, loggedTotal, personalCount int64) []DayBucket {
	if len(buckets) == 0 {
		return buckets
	}
	if diff := personalCount - loggedTotal; diff > 0 {
		buckets[len(buckets)-1].Count += diff
	}
	return buckets
}

// GlobalLastNDays returns the last n UTC days from a remote daily-count map,
// oldest first. Missing days read as zero.
func GlobalLastNDays(daily map[string]int64, n int, now time.Time) []DayBucket {
	if n <= 0 {
		return nil
	}
	utcNow := now.UTC()
	buckets := make([]DayBucket, n)
	for i := 0; i < n; i++ {
		start, end := dayBounds(startOfDay(utcNow).AddDate(0, 0, i-(n-1)))
		key := UTCDateKey(start)
		buckets[i] = DayBucket{
			Key:   key,
			Label: start.Weekday().String()[:3],
			Start: start,
			End:   end,
			Count: daily[key],
		}
	}
	return buckets
}

// Counts extracts the bucket counts.
func Counts(buckets []DayBucket) []int64 {
	out := make([]int64, len(buckets))
	for i, b := range buckets {
		out[i] = b.Count
	}
	return out
}

// NiceMax rounds the largest value up to the next multiple of 100. An empty
// slice behaves like a maximum of 1 and the result is never below 1.
func NiceMax(values []int64) int64 {
	max := int64(1)
	if len(values) > 0 {
		max = values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
	}
	nice := (max + 99) / 100 * 100
	if nice < 1 {
		return 1
	}
	return nice
}

// NiceMax125 returns the smallest value of the form {1, 2, 5, 10} x 10^k that
// is at least the largest value. It returns 1 when nothing is positive.
func NiceMax125(values []int64) int64 {
	var max int64
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	if max <= 0 {
		return 1
	}

	p := int64(1)
	for p <= max/10 {
		p *= 10
	}
	switch {
	case max <= p:
		return p
	case max <= 2*p:
		return 2 * p
	case max <= 5*p:
		return 5 * p
	default:
		return 10 * p
	}
}
