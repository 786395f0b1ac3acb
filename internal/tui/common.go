package tui

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sadopc/tally/internal/syncq"
	"github.com/sadopc/tally/internal/tally"
)

// viewState represents the currently active view.
type viewState int

const (
	viewCounter viewState = iota
	viewCharts
	viewHistory
	viewSync
)

var viewNames = []string{"Counter", "Charts", "History", "Sync"}

// --- Messages ---

type statusMsg struct {
	text    string
	isError bool
}

type tickMsg time.Time

// globalCountMsg carries a pushed global count from the remote subscription.
type globalCountMsg int64

// dailyCountsMsg carries the pushed per-UTC-day map.
type dailyCountsMsg map[string]int64

type bulkDoneMsg struct {
	n      int64
	result tally.Result
	err    error
}

type flushDoneMsg struct {
	outcome syncq.Outcome
}

type exportDoneMsg struct {
	path string
}

// --- Helpers ---

func formatAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

// timeNow is replaced in tests.
var timeNow = time.Now
