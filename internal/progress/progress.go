// Package progress measures the global count against the shared goal.
package progress

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultTarget is the community goal.
const DefaultTarget int64 = 150_000_000

// DefaultTargetDate is when the goal period ends.
var DefaultTargetDate = time.Date(2025, time.September, 15, 0, 0, 0, 0, time.UTC)

// Percent is current as a percentage of target, capped at 100. A
// non-positive target reports 0.
func Percent(current, target int64) float64 {
	if target <= 0 || current <= 0 {
		return 0
	}
	p := float64(current) / float64(target) * 100
	if p > 100 {
		return 100
	}
	return p
}

// Countdown is the whole time remaining until a target instant.
type Countdown struct {
	Days    int64
	Hours   int64
	Minutes int64
	Seconds int64
}

// Until returns the time from now to target, or all zeros once target has
// passed.
func Until(now, target time.Time) Countdown {
	d := target.Sub(now)
	if d <= 0 {
		return Countdown{}
	}
	secs := int64(d / time.Second)
	return Countdown{
		Days:    secs / 86400,
		Hours:   secs % 86400 / 3600,
		Minutes: secs % 3600 / 60,
		Seconds: secs % 60,
	}
}

// Done reports whether the target has been reached.
func (c Countdown) Done() bool {
	return c == Countdown{}
}

// String drops leading zero units: "3d 4h 5m", "4h 5m 6s", "5m 6s", "6s".
func (c Countdown) String() string {
	switch {
	case c.Days > 0:
		return fmt.Sprintf("%dd %dh %dm", c.Days, c.Hours, c.Minutes)
	case c.Hours > 0:
		return fmt.Sprintf("%dh %dm %ds", c.Hours, c.Minutes, c.Seconds)
	case c.Minutes > 0:
		return fmt.Sprintf("%dm %ds", c.Minutes, c.Seconds)
	default:
		return fmt.Sprintf("%ds", c.Seconds)
	}
}

// FormatNumber groups digits the way locale does, e.g. 1,50,00,000 for
// en-IN. Unknown locales fall back to English grouping.
func FormatNumber(n int64, locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return message.NewPrinter(tag).Sprintf("%d", n)
}
