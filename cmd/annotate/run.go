package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"medthread/internal/app"
	"medthread/internal/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// signalContext cancels on SIGINT or SIGTERM. A run stops dispatching at the
// next item boundary and still saves what it has.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func newRunCmd() *cobra.Command {
	var (
		ff     filterFlags
		limit  int
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Annotate one batch of pending items",
		Long: `Exports pending items matching the filter together with the rest of their
threads, annotates them, writes the backup file and stores the batch in one
transaction. With --dry-run the backup is written and the database is not.

Exit codes: 2 for configuration problems, 3 when the batch could not be
stored (the backup path is printed and can be replayed).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := ff.filter()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()

			a, err := app.New(ctx, config.Load(), prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer a.Close()

			stats, runErr := a.Orchestrator.WithDryRun(dryRun).Run(ctx, f, limit)
			if err := printJSON(cmd.OutOrStdout(), stats); err != nil {
				return err
			}
			return runErr
		},
	}
	ff.bind(cmd)
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum pending items to annotate (0 for no limit)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "write the backup but not the database")
	return cmd
}

func newReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <backup.json>",
		Short: "Store the results of a backup file",
		Long: `Persists every result in a backup file. Rows already stored are left alone,
so replaying the same file more than once is safe. No annotation credentials
are needed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			a, err := app.NewMaintenance(ctx, config.Load(), prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer a.Close()

			rs, err := a.Orchestrator.Replay(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rs)
		},
	}
}

func newResetFailedCmd() *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "reset-failed",
		Short: "Return failed items to pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := ff.filter()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()

			a, err := app.NewMaintenance(ctx, config.Load(), prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Orchestrator.ResetFailed(ctx, f)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"filter": f, "reset": n})
		},
	}
	ff.bind(cmd)
	return cmd
}
