package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/spice-ledger/internal/retrain"
)

func daemonCmd(opts *rootOptions) *cobra.Command {
	var (
		schedule    string
		minRequired int
		addr        string
		runNow      bool
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Serve metrics and retrain on a schedule",
		Long: `Run in the foreground, exposing Prometheus metrics on /metrics and
retraining from reviewed transactions on a cron schedule.

The schedule accepts standard five-field cron expressions and descriptors
such as @daily or @weekly.`,
		Example: `  spice daemon
  spice daemon --schedule "0 3 * * 0" --metrics-addr :9464`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if schedule == "" {
				schedule = a.cfg.Retrain.Schedule
			}
			if minRequired <= 0 {
				minRequired = a.cfg.Retrain.MinRequired
			}
			if addr == "" {
				addr = a.cfg.Metrics.Addr
			}

			scheduler := retrain.NewScheduler(ctx, a.trainer, a.cfg.Import.Owner, a.logger)
			if _, err := scheduler.Add(schedule, minRequired); err != nil {
				return err
			}
			if runNow {
				scheduler.RunOnce(ctx, minRequired)
			}
			scheduler.Start()
			defer scheduler.Stop()

			a.logger.Info("Daemon started",
				"metrics_addr", addr,
				"schedule", schedule,
				"min_required", minRequired)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := a.metrics.Serve(gctx, addr); err != nil {
					return fmt.Errorf("metrics server failed: %w", err)
				}
				return nil
			})
			err = g.Wait()
			if err != nil && !errors.Is(err, ctx.Err()) {
				return err
			}
			a.logger.Info("Daemon stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "cron schedule for retraining (default retrain.schedule)")
	cmd.Flags().IntVar(&minRequired, "min", 0, "minimum reviewed transactions required (default retrain.min_required)")
	cmd.Flags().StringVar(&addr, "metrics-addr", "", "listen address for /metrics (default metrics.addr)")
	cmd.Flags().BoolVar(&runNow, "run-now", false, "retrain once at startup before waiting for the schedule")

	return cmd
}
