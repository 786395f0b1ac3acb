package history

import (
	"context"
	"fmt"
	"time"
)

// DefaultChartDays is the width of the personal and global charts.
const DefaultChartDays = 7

// Counter reports the authoritative personal count.
type Counter interface {
	Count() int64
}

// DailySource reads the remote per-UTC-day counts.
type DailySource interface {
	DailyCounts(ctx context.Context) (map[string]int64, error)
}

// Aggregator builds chart series from the event log and the remote map.
type Aggregator struct {
	log     *Log
	counter Counter
	daily   DailySource
	now     func() time.Time
}

func NewAggregator(log *Log, counter Counter, daily DailySource) *Aggregator {
	return &Aggregator{log: log, counter: counter, daily: daily, now: time.Now}
}

// PersonalChart returns n local-day buckets reconciled against the
// personal count so the chart total never trails the counter.
func (a *Aggregator) PersonalChart(n int) ([]DayBucket, error) {
	entries, err := a.log.Recent(0)
	if err != nil {
		return nil, fmt.Errorf("personal chart: %w", err)
	}
	var logged int64
	for _, e := range entries {
		logged += e.Count
	}
	buckets := BuildLastNDays(entries, n, a.now())
	return Reconcile(buckets, logged, a.counter.Count()), nil
}

// GlobalChart returns the last n UTC days of the shared daily counts.
func (a *Aggregator) GlobalChart(ctx context.Context, n int) ([]DayBucket, error) {
	daily, err := a.daily.DailyCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("global chart: %w", err)
	}
	return GlobalLastNDays(daily, n, a.now()), nil
}
