package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sadopc/tally/internal/export"
	"github.com/sadopc/tally/internal/history"
	"github.com/sadopc/tally/internal/store"
	"github.com/sadopc/tally/internal/tally"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
	Days  int
	Clear bool
}

// NewHistoryCommand lists recent increments.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List your recent increments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, opts.RootOptions)
			return withApp(cmd.Context(), opts.RootOptions, func(ctx context.Context, app *tally.App) error {
				if opts.Clear {
					if err := app.History.Clear(); err != nil {
						return err
					}
					fmt.Fprintln(cmd.ErrOrStderr(), "History cleared. Your count is unchanged.")
					return nil
				}

				entries, err := loadHistory(app, opts.Days)
				if err != nil {
					return err
				}
				if opts.Limit > 0 && len(entries) > opts.Limit {
					entries = entries[:opts.Limit]
				}
				if p.json() {
					return export.WriteJSON(p.out, entries)
				}
				renderHistory(p.out, entries, app.FormatNumber)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "number of entries to show (0 for all)")
	cmd.Flags().IntVar(&opts.Days, "days", 0, "only entries from the last N days (0 for all)")
	cmd.Flags().BoolVar(&opts.Clear, "clear", false, "delete the history log")

	return cmd
}

// loadHistory returns the log newest first. When days > 0 only entries from
// that many device-local days, today included, are returned.
func loadHistory(app *tally.App, days int) ([]store.HistoryEntry, error) {
	if days <= 0 {
		return app.History.Recent(0)
	}
	from, to := history.LastDays(days, time.Now())
	return app.History.Range(from, to)
}

func renderHistory(w io.Writer, entries []store.HistoryEntry, format func(int64) string) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No history yet.")
		return
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Timestamp.Local().Format("2006-01-02 15:04"),
			humanize.Time(e.Timestamp),
			string(e.Type),
			format(e.Count),
		})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("WHEN", "AGO", "TYPE", "COUNT").
		Rows(rows...)
	fmt.Fprintln(w, t.String())
}

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	As   string
	Out  string
	Days int
}

// NewExportCommand writes the history log to a file.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export your history as CSV or JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.As != "csv" && opts.As != "json" {
				return fmt.Errorf("invalid --as %q: must be csv or json", opts.As)
			}
			return withApp(cmd.Context(), opts.RootOptions, func(ctx context.Context, app *tally.App) error {
				entries, err := loadHistory(app, opts.Days)
				if err != nil {
					return err
				}
				return writeExport(cmd, opts, entries)
			})
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "csv", "file format (csv|json)")
	cmd.Flags().IntVar(&opts.Days, "days", 0, "only entries from the last N days (0 for all)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", `output file, "-" for stdout (default tally-history.<as>)`)

	return cmd
}

func writeExport(cmd *cobra.Command, opts *ExportOptions, entries []store.HistoryEntry) error {
	if opts.Out == "-" {
		if opts.As == "json" {
			return export.WriteJSON(cmd.OutOrStdout(), entries)
		}
		return export.WriteCSV(cmd.OutOrStdout(), entries)
	}

	path := opts.Out
	if path == "" {
		path = "tally-history." + opts.As
	}
	var err error
	if opts.As == "json" {
		err = export.ToJSON(entries, path)
	} else {
		err = export.ToCSV(entries, path)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d entries to %s\n", len(entries), path)
	return nil
}
