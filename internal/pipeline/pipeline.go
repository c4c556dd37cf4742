package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/strrl/tp-autotune/internal/parser"
	"github.com/strrl/tp-autotune/internal/workspace"
)

// Pipeline turns the sorted export into the per-day entries files and the
// treatment log the optimizer reads.
type Pipeline struct {
	window Window
	ws     *workspace.Workspace
	logger *slog.Logger
}

func New(window Window, ws *workspace.Workspace, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		window: window,
		ws:     ws,
		logger: logger,
	}
}

type Stats struct {
	TotalEvents int
	Readings    int
	Buckets     int
	Treatments  int
}

type Output struct {
	EntriesPaths   map[string]string
	TreatmentsPath string
	Stats          Stats
}

func (p *Pipeline) Process(ctx context.Context, events []parser.Event) (*Output, error) {
	stats := Stats{
		TotalEvents: len(events),
	}

	p.logger.Debug("translating cbg values", "window", p.window.String())
	buckets, err := PartitionReadings(events, p.window)
	if err != nil {
		return nil, fmt.Errorf("readings translation failed: %w", err)
	}
	for _, readings := range buckets {
		stats.Readings += len(readings)
	}
	stats.Buckets = len(buckets)

	entriesPaths, err := WriteBuckets(ctx, p.ws, buckets)
	if err != nil {
		return nil, fmt.Errorf("failed to write entries: %w", err)
	}

	p.logger.Debug("translating pump history events")
	treatments, err := Translate(events, p.window)
	if err != nil {
		return nil, fmt.Errorf("treatment translation failed: %w", err)
	}
	stats.Treatments = len(treatments)

	if err := p.ws.WriteJSON(p.ws.TreatmentsPath(), treatments); err != nil {
		return nil, err
	}

	p.logger.Info("translated export",
		"events", stats.TotalEvents,
		"readings", stats.Readings,
		"days", stats.Buckets,
		"treatments", stats.Treatments,
	)

	return &Output{
		EntriesPaths:   entriesPaths,
		TreatmentsPath: p.ws.TreatmentsPath(),
		Stats:          stats,
	}, nil
}
