package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

func (g *Generator) writeChart(report *Report, points []Point) error {
	if err := os.MkdirAll(filepath.Dir(g.chartPath), 0755); err != nil {
		return fmt.Errorf("failed to create chart directory: %w", err)
	}

	f, err := os.Create(g.chartPath)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	defer f.Close()

	if err := RenderBasalChart(f, report, points); err != nil {
		return err
	}
	return f.Close()
}

// RenderBasalChart draws the hourly basal rate of every profile in the chain
// as one line each.
func RenderBasalChart(w io.Writer, report *Report, points []Point) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Autotune basal profile",
			Width:     "1000px",
			Height:    "560px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Basal rate by hour",
			Subtitle: fmt.Sprintf("%s to %s", report.StartDate, report.EndDate),
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "axis",
		}),
		charts.WithLegendOpts(opts.Legend{
			Show: opts.Bool(true),
			Top:  "bottom",
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name: "U/h",
		}),
	)

	hours := make([]string, 24)
	for h := range hours {
		hours[h] = fmt.Sprintf("%02d:00", h)
	}
	line.SetXAxis(hours)

	for _, p := range points {
		rates := p.Summary.HourlyRates()
		data := make([]opts.LineData, len(rates))
		for i, r := range rates {
			data[i] = opts.LineData{Value: r}
		}
		line.AddSeries(p.Label, data)
	}

	if err := line.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}
