package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/sadopc/tally/internal/tally"
)

type countResult struct {
	PersonalCount int64  `json:"personal_count"`
	Added         int64  `json:"added"`
	Outcome       string `json:"outcome,omitempty"`
	Pending       int64  `json:"pending"`
	Warning       string `json:"warning,omitempty"`
}

// NewTapCommand adds one to the count.
func NewTapCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tap",
		Short: "Add one to your count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, opts)
			return withApp(cmd.Context(), opts, func(ctx context.Context, app *tally.App) error {
				n, err := app.Service.Tap()
				if err != nil {
					return err
				}
				app.Service.Wait()

				res := countResult{PersonalCount: n, Added: 1, Pending: app.Queue.Pending()}
				return p.emit(res, func(w io.Writer) {
					fmt.Fprintf(w, "Count: %s\n", app.FormatNumber(n))
					if res.Pending > 0 {
						fmt.Fprintf(w, "Waiting to sync: %s\n", app.FormatNumber(res.Pending))
					}
				})
			})
		},
	}
}

// AddOptions holds flags for the add command.
type AddOptions struct {
	*RootOptions
	Yes bool
}

// NewAddCommand adds a bulk amount to the count.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <count>",
		Short: "Add many at once",
		Long: fmt.Sprintf(`Add a positive whole number to your count and sync it right away.

Amounts above %d ask for confirmation unless --yes is given.`, tally.LargeBulkThreshold),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := tally.ParseCount(args[0])
			if err != nil {
				return errors.New(tally.InvalidCountMessage)
			}
			if tally.NeedsConfirmation(n) && !opts.Yes {
				ok, err := confirmLarge(n)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.ErrOrStderr(), "Cancelled.")
					return nil
				}
			}
			return runAdd(cmd, opts.RootOptions, n)
		},
	}

	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "skip the confirmation for large amounts")

	return cmd
}

func confirmLarge(n int64) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(fmt.Sprintf("Add %d?", n)).
		Description("That is a large amount. Please confirm it is correct.").
		Affirmative("Add").
		Negative("Cancel").
		Value(&ok).
		Run()
	if err != nil {
		return false, fmt.Errorf("confirm: %w", err)
	}
	return ok, nil
}

func runAdd(cmd *cobra.Command, opts *RootOptions, n int64) error {
	p := newPrinter(cmd, opts)
	return withApp(cmd.Context(), opts, func(ctx context.Context, app *tally.App) error {
		res, err := app.Service.AddBulk(ctx, n)
		if err != nil {
			return err
		}
		out := countResult{
			PersonalCount: res.PersonalCount,
			Added:         n,
			Outcome:       res.Outcome.String(),
			Pending:       app.Queue.Pending(),
			Warning:       res.Warning,
		}
		if res.Warning != "" {
			p.warn(res.Warning)
		}
		return p.emit(out, func(w io.Writer) {
			fmt.Fprintf(w, "Added %s. Count: %s\n", app.FormatNumber(n), app.FormatNumber(res.PersonalCount))
		})
	})
}
