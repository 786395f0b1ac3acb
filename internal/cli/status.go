package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sadopc/tally/internal/history"
	"github.com/sadopc/tally/internal/tally"
)

type syncReport struct {
	Outcome    string `json:"outcome"`
	Pending    int64  `json:"pending"`
	LastSynced string `json:"last_synced,omitempty"`
	LastError  string `json:"last_error,omitempty"`
	Breaker    string `json:"breaker"`
}

// NewSyncCommand flushes queued increments now.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Send queued increments to the global count now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, opts)
			return withApp(cmd.Context(), opts, func(ctx context.Context, app *tally.App) error {
				out := app.Queue.Flush(ctx)
				st := app.Queue.Stats()
				rep := syncReport{
					Outcome:    out.String(),
					Pending:    st.Pending,
					LastSynced: formatTime(st.LastSynced),
					LastError:  st.LastError,
					Breaker:    st.Breaker,
				}
				return p.emit(rep, func(w io.Writer) {
					switch {
					case st.Pending == 0:
						fmt.Fprintln(w, "Everything is synced.")
					default:
						fmt.Fprintf(w, "%s still waiting to sync.\n", app.FormatNumber(st.Pending))
						if st.LastError != "" {
							fmt.Fprintf(w, "Last error: %s\n", st.LastError)
						}
					}
				})
			})
		},
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

type statsReport struct {
	Personal    int64         `json:"personal_count"`
	Global      *int64        `json:"global_count,omitempty"`
	GlobalError string        `json:"global_error,omitempty"`
	Updated     string        `json:"global_updated,omitempty"`
	Percent     float64       `json:"goal_percent"`
	Target      int64         `json:"goal_target"`
	Remaining   string        `json:"time_remaining"`
	Pending     int64         `json:"pending"`
	History     history.Stats `json:"history"`
}

// NewStatsCommand prints counts, goal progress and personal statistics.
func NewStatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show counts, goal progress and your statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, opts)
			return withApp(cmd.Context(), opts, func(ctx context.Context, app *tally.App) error {
				snap := app.Snapshot(ctx)
				hs, err := app.History.Stats()
				if err != nil {
					return err
				}

				rep := statsReport{
					Personal:  snap.Personal,
					Percent:   snap.Percent,
					Target:    app.Config.Goal.Target,
					Remaining: snap.Countdown.String(),
					Pending:   snap.Sync.Pending,
					History:   hs,
				}
				if snap.GlobalErr != nil {
					rep.GlobalError = snap.GlobalErr.Error()
				} else {
					rep.Global = &snap.Global
					rep.Updated = formatTime(snap.GlobalUpdated)
				}

				return p.emit(rep, func(w io.Writer) {
					f := app.FormatNumber
					fmt.Fprintf(w, "Your count:     %s\n", f(snap.Personal))
					if rep.Global != nil {
						fmt.Fprintf(w, "Global count:   %s of %s (%.2f%%)\n", f(snap.Global), f(rep.Target), snap.Percent)
						if !snap.GlobalUpdated.IsZero() {
							fmt.Fprintf(w, "Last added:     %s\n", humanize.Time(snap.GlobalUpdated))
						}
					} else {
						fmt.Fprintln(w, "Global count:   unavailable")
					}
					fmt.Fprintf(w, "Time left:      %s\n", rep.Remaining)
					if rep.Pending > 0 {
						fmt.Fprintf(w, "Waiting sync:   %s\n", f(rep.Pending))
					}
					fmt.Fprintln(w)
					fmt.Fprintf(w, "Today:          %s\n", f(hs.TodayCount))
					fmt.Fprintf(w, "This week:      %s\n", f(hs.WeekCount))
					fmt.Fprintf(w, "This month:     %s\n", f(hs.MonthCount))
					fmt.Fprintf(w, "Sessions:       %d (avg %s)\n", hs.TotalSessions, f(hs.AveragePerSession))
				})
			})
		},
	}
}
