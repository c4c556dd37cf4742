package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/strrl/tp-autotune/internal/profile"
	"github.com/strrl/tp-autotune/internal/refine"
)

// Report is everything a finished (or failed) run leaves behind.
type Report struct {
	RunID           string
	Source          string
	StartDate       string
	EndDate         string
	Baseline        []byte
	Days            []refine.DayState
	Recommendations string
}

// Point is one profile of the chain with the label it is shown under.
type Point struct {
	Label   string
	Summary *profile.Summary
}

// Chain summarizes the baseline followed by every refined day.
func (r *Report) Chain() ([]Point, error) {
	base, err := profile.Summarize(r.Baseline)
	if err != nil {
		return nil, fmt.Errorf("baseline: %w", err)
	}
	points := []Point{{Label: "baseline", Summary: base}}

	for _, day := range r.Days {
		if day.Refined == nil {
			continue
		}
		s, err := profile.Summarize(day.Refined)
		if err != nil {
			return nil, fmt.Errorf("profile for %s: %w", day.Date, err)
		}
		points = append(points, Point{Label: day.Date, Summary: s})
	}
	return points, nil
}

type Generator struct {
	summaryPath string
	chartPath   string
}

// NewGenerator writes the summary and chart to the given paths. An empty
// chartPath disables the chart.
func NewGenerator(summaryPath, chartPath string) *Generator {
	return &Generator{
		summaryPath: summaryPath,
		chartPath:   chartPath,
	}
}

// Generate writes every enabled output and returns the written paths.
func (g *Generator) Generate(report *Report) ([]string, error) {
	points, err := report.Chain()
	if err != nil {
		return nil, err
	}

	var files []string

	if err := g.writeSummary(report, points); err != nil {
		return nil, err
	}
	files = append(files, g.summaryPath)

	if g.chartPath != "" {
		if err := g.writeChart(report, points); err != nil {
			return nil, err
		}
		files = append(files, g.chartPath)
	}

	return files, nil
}

func (g *Generator) writeSummary(report *Report, points []Point) error {
	if err := os.MkdirAll(filepath.Dir(g.summaryPath), 0755); err != nil {
		return fmt.Errorf("failed to create summary directory: %w", err)
	}
	if err := os.WriteFile(g.summaryPath, []byte(RenderSummary(report, points)), 0644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

// RenderSummary formats the run as markdown.
func RenderSummary(report *Report, points []Point) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Autotune run %s\n\n", emptyFallback(report.RunID, "(unnamed)")))
	sb.WriteString(fmt.Sprintf("**Source:** %s\n", emptyFallback(report.Source, "-")))
	sb.WriteString(fmt.Sprintf("**Range:** %s to %s\n", report.StartDate, report.EndDate))
	sb.WriteString(fmt.Sprintf("**Days refined:** %d of %d\n\n", len(points)-1, len(report.Days)))

	if failed := failedDay(report.Days); failed != nil {
		sb.WriteString(fmt.Sprintf("Run stopped on %s while %s.\n\n", failed.Date, failed.State))
	}

	sb.WriteString("## Profile chain\n\n")
	sb.WriteString("| Profile | Basal (U/day) | ISF (mg/dL/U) | Carb ratio (g/U) |\n")
	sb.WriteString("|---|---|---|---|\n")
	for _, p := range points {
		sb.WriteString(fmt.Sprintf("| %s | %.2f | %.1f | %.1f |\n",
			p.Label, p.Summary.DailyBasal, p.Summary.Sensitivity, p.Summary.CarbRatio))
	}
	sb.WriteString("\n")

	if len(points) > 1 {
		base := points[0].Summary.HourlyRates()
		final := points[len(points)-1].Summary.HourlyRates()

		sb.WriteString("## Basal by hour\n\n")
		sb.WriteString("| Hour | Baseline | Final | Change |\n")
		sb.WriteString("|---|---|---|---|\n")
		for h := range base {
			sb.WriteString(fmt.Sprintf("| %02d:00 | %.3f | %.3f | %s |\n", h, base[h], final[h], change(base[h], final[h])))
		}
		sb.WriteString("\n")
	}

	if strings.TrimSpace(report.Recommendations) != "" {
		sb.WriteString("## Recommendations\n\n")
		sb.WriteString("```text\n")
		sb.WriteString(strings.TrimRight(report.Recommendations, "\n"))
		sb.WriteString("\n```\n")
	}

	return sb.String()
}

func failedDay(days []refine.DayState) *refine.DayState {
	if len(days) == 0 {
		return nil
	}
	last := days[len(days)-1]
	if last.State == refine.StateDone {
		return nil
	}
	return &last
}

func change(from, to float64) string {
	if from == 0 {
		if to == 0 {
			return "0%"
		}
		return "new"
	}
	return fmt.Sprintf("%+.0f%%", (to-from)/from*100)
}

func emptyFallback(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
