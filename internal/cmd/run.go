package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/strrl/tp-autotune/internal/config"
)

var (
	runStartDate string
	runEndDate   string
	runSource    string
	runNoDocker  bool
	runDataDir   string
	runTemplate  string
	runChart     bool
	runHistoryDB string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Convert an export and run autotune over a date range",
	Long: `Convert a Tidepool export into autotune inputs and run autotune prep, core
and report for every day from --start-date to --end-date (both inclusive,
default yesterday). The data directory is wiped first. The accumulated
recommendations are printed when the last day finishes.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runStartDate, "start-date", "", "First day to tune, YYYY-MM-DD (default: yesterday)")
	runCmd.Flags().StringVar(&runEndDate, "end-date", "", "Last day to tune, YYYY-MM-DD (default: yesterday)")
	runCmd.Flags().StringVarP(&runSource, "source", "s", "", "Path to the Tidepool JSON export")
	runCmd.Flags().BoolVarP(&runNoDocker, "no-docker", "d", false, "Use locally installed oref0 executables instead of the docker image")
	runCmd.Flags().StringVar(&runDataDir, "data-dir", "", "Working directory for all generated files (default: data)")
	runCmd.Flags().StringVar(&runTemplate, "template", "", "Profile template to fill in (default: built-in)")
	runCmd.Flags().BoolVar(&runChart, "chart", false, "Also render an HTML chart of the basal profile per day")
	runCmd.Flags().StringVar(&runHistoryDB, "history-db", "", "SQLite file to record run history in")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg.Verbose)

	res, err := execute(cmd.Context(), cfg, logger)
	if err != nil {
		logger.Error("autotune run failed", "error", err)
		return err
	}

	for _, f := range res.Outputs {
		logger.Info("wrote output", "path", f)
	}
	fmt.Fprint(os.Stdout, res.Loop.Recommendations)
	return nil
}

// applyRunFlags overrides cfg with the flags the user set explicitly.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("start-date") {
		cfg.StartDate = runStartDate
	}
	if flags.Changed("end-date") {
		cfg.EndDate = runEndDate
	}
	if flags.Changed("source") {
		cfg.Source = runSource
	}
	if flags.Changed("no-docker") {
		cfg.Optimizer.Local = runNoDocker
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = runDataDir
	}
	if flags.Changed("template") {
		cfg.Template = runTemplate
	}
	if flags.Changed("chart") {
		cfg.Output.Chart = runChart
	}
	if flags.Changed("history-db") {
		cfg.History.SQLitePath = runHistoryDB
	}
}
