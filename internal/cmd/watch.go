package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strrl/tp-autotune/internal/scheduler"
)

var (
	watchSource string
	watchCron   string
	watchNow    bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run autotune for the previous day on a schedule",
	Long: `Stay in the foreground and, on every tick of the cron spec (seconds first,
default 02:30:00 daily), run autotune over yesterday using the configured export.
A run still in progress when the next tick arrives makes that tick a no-op.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVarP(&watchSource, "source", "s", "", "Path to the Tidepool JSON export")
	watchCmd.Flags().StringVar(&watchCron, "cron", "", "Cron spec with a seconds field (default: 0 30 2 * * *)")
	watchCmd.Flags().BoolVar(&watchNow, "now", false, "Also run once immediately")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("source") {
		cfg.Source = watchSource
	}
	if cmd.Flags().Changed("cron") {
		cfg.Watch.Cron = watchCron
	}

	// Every tick tunes the day before it fires.
	cfg.StartDate, cfg.EndDate = "", ""

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.ValidateWatch(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg.Verbose)
	ctx := cmd.Context()

	job := func(ctx context.Context) error {
		res, err := execute(ctx, cfg, logger)
		if err != nil {
			return err
		}
		logger.Info("recommendations updated", "days", len(res.Loop.Days), "outputs", res.Outputs)
		return nil
	}

	s := scheduler.New(logger)
	if err := s.Register(ctx, "autotune", cfg.Watch.Cron, job); err != nil {
		return err
	}

	if watchNow {
		if err := job(ctx); err != nil {
			logger.Error("initial run failed", "error", err)
		}
	}

	return s.Run(ctx)
}
