package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/strrl/tp-autotune/internal/config"
	"github.com/strrl/tp-autotune/internal/optimizer"
	"github.com/strrl/tp-autotune/internal/output"
	"github.com/strrl/tp-autotune/internal/parser"
	"github.com/strrl/tp-autotune/internal/pipeline"
	"github.com/strrl/tp-autotune/internal/profile"
	"github.com/strrl/tp-autotune/internal/recorder"
	"github.com/strrl/tp-autotune/internal/refine"
	"github.com/strrl/tp-autotune/internal/workspace"
)

type runResult struct {
	Loop    *refine.Result
	Outputs []string
}

// execute performs one complete run: reset the data directory, build the
// baseline profile, translate the export and refine day by day.
func execute(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runResult, error) {
	start, end, err := cfg.Range(time.Now())
	if err != nil {
		return nil, err
	}
	lookback, err := cfg.Lookback()
	if err != nil {
		return nil, err
	}
	lookahead, err := cfg.Lookahead()
	if err != nil {
		return nil, err
	}

	ws, err := workspace.New(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("preparing data directory", "path", ws.Root())
	if err := ws.Reset(); err != nil {
		return nil, err
	}

	logger.Info("loading export", "source", cfg.Source)
	events, err := parser.Load(cfg.Source)
	if err != nil {
		return nil, err
	}
	logger.Debug("export loaded", "events", len(events))

	logger.Debug("generating profile")
	tmpl, err := profile.LoadTemplate(cfg.Template)
	if err != nil {
		return nil, err
	}
	doc, err := profile.Build(events, tmpl)
	if err != nil {
		return nil, fmt.Errorf("failed to build profile: %w", err)
	}
	baseline, err := profile.WriteArtifacts(ws, doc)
	if err != nil {
		return nil, err
	}

	window := pipeline.NewWindow(start, end, lookback, lookahead)
	prepared, err := pipeline.New(window, ws, logger).Process(ctx, events)
	if err != nil {
		return nil, err
	}

	opt, err := optimizer.NewExec(optimizer.Config{
		Docker:    !cfg.Optimizer.Local,
		Image:     cfg.Optimizer.Image,
		Root:      ws.Root(),
		PrepBin:   cfg.Optimizer.PrepBin,
		CoreBin:   cfg.Optimizer.CoreBin,
		ReportBin: cfg.Optimizer.ReportBin,
	}, logger)
	if err != nil {
		return nil, err
	}

	rec, err := openRecorder(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer rec.Close()

	plan := refine.Plan{
		RunID:          recorder.NewRunID(),
		Source:         cfg.Source,
		Start:          start,
		End:            end,
		Baseline:       baseline,
		EntriesPaths:   prepared.EntriesPaths,
		TreatmentsPath: prepared.TreatmentsPath,
	}
	logger.Info("refining profile", "run", plan.RunID,
		"start", start.Format(pipeline.DateLayout), "end", end.Format(pipeline.DateLayout))

	result, runErr := refine.NewLoop(opt, ws, rec, logger).Run(ctx, plan)
	if result == nil {
		return nil, runErr
	}

	// A failed run still gets a summary of the days it completed.
	outputs, outErr := writeOutputs(cfg, ws, plan, result)
	if runErr != nil {
		if outErr == nil {
			logger.Info("partial results written", "paths", outputs)
		}
		return nil, runErr
	}
	if outErr != nil {
		return nil, outErr
	}

	return &runResult{Loop: result, Outputs: outputs}, nil
}

func openRecorder(cfg *config.Config, logger *slog.Logger) (recorder.Recorder, error) {
	if cfg.History.SQLitePath == "" {
		return recorder.NewNoopRecorder(), nil
	}
	rec, err := recorder.NewSQLiteRecorder(cfg.History.SQLitePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	return rec, nil
}

func writeOutputs(cfg *config.Config, ws *workspace.Workspace, plan refine.Plan, result *refine.Result) ([]string, error) {
	summaryPath := cfg.Output.SummaryPath
	if summaryPath == "" {
		summaryPath = filepath.Join(ws.AutotuneDir(), "summary.md")
	}
	var chartPath string
	if cfg.Output.Chart {
		chartPath = cfg.Output.ChartPath
		if chartPath == "" {
			chartPath = filepath.Join(ws.AutotuneDir(), "basal.html")
		}
	}

	return output.NewGenerator(summaryPath, chartPath).Generate(&output.Report{
		RunID:           result.RunID,
		Source:          plan.Source,
		StartDate:       plan.Start.Format(pipeline.DateLayout),
		EndDate:         plan.End.Format(pipeline.DateLayout),
		Baseline:        plan.Baseline,
		Days:            result.Days,
		Recommendations: result.Recommendations,
	})
}
