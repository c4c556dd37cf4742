package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/strrl/tp-autotune/internal/parser"
	"github.com/strrl/tp-autotune/internal/recorder"
)

var (
	inspectSource  string
	inspectHistory bool
	inspectLimit   int
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Summarize an export or the run history",
	Long: `Print per-type record counts and time ranges of a Tidepool export, along with
the number of glucose readings per day, so gaps that would stop a run can be
spotted up front. With --history, list recent runs from the history database.`,
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringVarP(&inspectSource, "source", "s", "", "Path to the Tidepool JSON export")
	inspectCmd.Flags().BoolVar(&inspectHistory, "history", false, "List recent runs instead of inspecting an export")
	inspectCmd.Flags().IntVar(&inspectLimit, "limit", 10, "Number of runs to list with --history")
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("source") {
		cfg.Source = inspectSource
	}
	logger := newLogger(cfg.Verbose)

	if inspectHistory {
		if cfg.History.SQLitePath == "" {
			return fmt.Errorf("history.sqlite_path is not configured")
		}
		rec, err := recorder.NewSQLiteRecorder(cfg.History.SQLitePath, logger)
		if err != nil {
			return fmt.Errorf("failed to open run history: %w", err)
		}
		defer rec.Close()
		return printHistory(rec)
	}

	if cfg.Source == "" {
		return fmt.Errorf("source is required")
	}

	inspector, err := parser.NewInspector()
	if err != nil {
		return fmt.Errorf("failed to create inspector: %w", err)
	}

	stats, err := inspector.TypeStats(cfg.Source)
	if err != nil {
		return fmt.Errorf("failed to get export stats: %w", err)
	}
	if len(stats) == 0 {
		return fmt.Errorf("no records found in export: %s", cfg.Source)
	}

	fmt.Printf("Export: %s\n\n", cfg.Source)
	fmt.Printf("%-14s %8s  %-28s  %-28s\n", "TYPE", "COUNT", "FIRST", "LAST")
	for _, s := range stats {
		fmt.Printf("%-14s %8d  %-28s  %-28s\n", s.Type, s.Count, emptyDash(s.First), emptyDash(s.Last))
	}

	daily, err := inspector.DailyReadings(cfg.Source)
	if err != nil {
		return fmt.Errorf("failed to count readings: %w", err)
	}

	dates := make([]string, 0, len(daily))
	for d := range daily {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	fmt.Printf("\nGlucose readings per day (%d days):\n", len(dates))
	for _, d := range dates {
		fmt.Printf("  %s  %4d\n", d, daily[d])
	}

	return nil
}

func printHistory(rec recorder.Recorder) error {
	runs, err := rec.Runs(inspectLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	fmt.Printf("%-36s  %-10s  %-23s  %4s  %-20s\n", "RUN", "STATUS", "RANGE", "DAYS", "STARTED")
	for _, r := range runs {
		fmt.Printf("%-36s  %-10s  %-23s  %4d  %-20s\n",
			r.ID, r.Status, r.StartDate+" to "+r.EndDate, r.Days, formatTime(r.StartedAt))
		if r.Err != "" {
			fmt.Printf("  error: %s\n", r.Err)
		}
	}
	return nil
}

func emptyDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
