// Package cli defines the tally command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/sadopc/tally/internal/config"
	"github.com/sadopc/tally/internal/logging"
	"github.com/sadopc/tally/internal/tally"
	"github.com/sadopc/tally/internal/tui"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath  string
	LogFile     string
	MetricsAddr string
	Format      string // "text" | "json"

	// Config is loaded before any subcommand runs.
	Config *config.Config

	logOut io.Closer
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command. Run without a subcommand it
// opens the terminal UI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tally",
		Short: "Count together, even offline",
		Long: `tally keeps a personal count on this device and adds it to a shared
global count. Increments are saved locally first and synced in the
background, so counting never waits on the network.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			opts.teardown()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, app *tally.App) error {
				ctx, cancel := context.WithCancel(ctx)
				done := app.Start(ctx)
				err := tui.Run(app)
				cancel()
				<-done
				return err
			})
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default $TALLY_CONFIG or <config dir>/tally/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.LogFile, "log-file", "", `log destination, "-" for stderr (overrides log.file)`)
	cmd.PersistentFlags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewTapCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))

	return cmd
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func (o *RootOptions) setup() error {
	if !slices.Contains(ValidFormats, o.Format) {
		return fmt.Errorf("invalid format %q: must be one of %v", o.Format, ValidFormats)
	}

	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}
	if o.LogFile != "" {
		cfg.Log.File = o.LogFile
	}
	if o.MetricsAddr != "" {
		cfg.Metrics.Addr = o.MetricsAddr
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	o.Config = cfg

	out := io.Writer(os.Stderr)
	if cfg.Log.File != "" && cfg.Log.File != "-" {
		f, err := logging.OpenFile(cfg.Log.File)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		o.logOut = f
		out = f
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: out})
	return nil
}

func (o *RootOptions) teardown() {
	if o.logOut != nil {
		o.logOut.Close()
		o.logOut = nil
	}
}

// withApp opens the app for the duration of fn.
func withApp(ctx context.Context, opts *RootOptions, fn func(ctx context.Context, app *tally.App) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := tally.Open(ctx, opts.Config)
	if err != nil {
		return err
	}
	runErr := fn(ctx, app)
	if err := app.Close(); err != nil {
		logging.Error().Err(err).Msg("close")
	}
	return runErr
}
