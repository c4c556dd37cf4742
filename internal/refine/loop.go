// Package refine drives the optimizer one calendar day at a time, carrying
// each day's refined profile into the next.
package refine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/strrl/tp-autotune/internal/optimizer"
	"github.com/strrl/tp-autotune/internal/pipeline"
	"github.com/strrl/tp-autotune/internal/recorder"
	"github.com/strrl/tp-autotune/internal/workspace"
)

type State string

const (
	StatePending    State = "pending"
	StatePreparing  State = "preparing"
	StateOptimizing State = "optimizing"
	StateReporting  State = "reporting"
	StateAdvancing  State = "advancing"
	StateDone       State = "done"
)

// DayState is one link of the profile chain. Profile is what the day
// started from and Refined what the optimizer produced from it; on success
// the next day's Profile equals this day's Refined.
type DayState struct {
	Date           string
	ProfilePath    string
	ReadingsPath   string
	TreatmentsPath string
	ArchivePath    string
	PrepPath       string
	CandidatePath  string

	Profile []byte
	Refined []byte
	State   State
}

// Plan is the fixed input of a run. Start and End are UTC midnights of an
// inclusive date range.
type Plan struct {
	RunID          string
	Source         string
	Start          time.Time
	End            time.Time
	Baseline       []byte
	EntriesPaths   map[string]string
	TreatmentsPath string
}

type Result struct {
	RunID           string
	Days            []DayState
	Recommendations string
	// Final is the profile left by the last day.
	Final []byte
}

// MissingReadingBucketError means a date in range had no glucose readings.
type MissingReadingBucketError struct {
	Date string
}

func (e *MissingReadingBucketError) Error() string {
	return fmt.Sprintf("no glucose readings for %s", e.Date)
}

// ErrInvalidRange is returned when the plan's end precedes its start.
var ErrInvalidRange = errors.New("end date is before start date")

type Loop struct {
	opt    optimizer.Optimizer
	ws     *workspace.Workspace
	rec    recorder.Recorder
	logger *slog.Logger
}

func NewLoop(opt optimizer.Optimizer, ws *workspace.Workspace, rec recorder.Recorder, logger *slog.Logger) *Loop {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Loop{
		opt:    opt,
		ws:     ws,
		rec:    rec,
		logger: logger,
	}
}

// Run refines the baseline over every date of the plan in order. It stops at
// the first failure; the returned Result then holds the days up to and
// including the failed one.
func (l *Loop) Run(ctx context.Context, plan Plan) (*Result, error) {
	if plan.End.Before(plan.Start) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidRange,
			plan.Start.Format(pipeline.DateLayout), plan.End.Format(pipeline.DateLayout))
	}
	if !json.Valid(plan.Baseline) {
		return nil, fmt.Errorf("baseline profile is not valid JSON")
	}
	if plan.RunID == "" {
		plan.RunID = recorder.NewRunID()
	}

	l.record(l.rec.RecordRunStart(&recorder.RunStart{
		ID:        plan.RunID,
		Source:    plan.Source,
		StartDate: plan.Start.Format(pipeline.DateLayout),
		EndDate:   plan.End.Format(pipeline.DateLayout),
		StartedAt: time.Now(),
	}))

	result := &Result{RunID: plan.RunID}
	current := plan.Baseline

	for d := plan.Start; !d.After(plan.End); d = d.AddDate(0, 0, 1) {
		day := l.newDay(plan, d.Format(pipeline.DateLayout), current)

		err := l.runDay(ctx, day)
		if err == nil {
			current = day.Refined
			day.State = StateDone
		}
		result.Days = append(result.Days, *day)

		outcome := &recorder.DayOutcome{RunID: plan.RunID, Date: day.Date, State: string(day.State), ProfilePath: day.CandidatePath}
		if err != nil {
			err = fmt.Errorf("day %s failed while %s: %w", day.Date, day.State, err)
			outcome.Err = err.Error()
			l.record(l.rec.RecordDay(outcome))
			l.finish(plan.RunID, err)
			return result, err
		}
		l.record(l.rec.RecordDay(outcome))
	}

	data, err := os.ReadFile(l.ws.RecommendationsPath())
	if err != nil {
		err = fmt.Errorf("failed to read recommendations: %w", err)
		l.finish(plan.RunID, err)
		return result, err
	}

	result.Recommendations = string(data)
	result.Final = current
	l.finish(plan.RunID, nil)

	l.logger.Info("refinement complete", "run", plan.RunID, "days", len(result.Days))
	return result, nil
}

func (l *Loop) newDay(plan Plan, date string, current []byte) *DayState {
	return &DayState{
		Date:           date,
		ProfilePath:    l.ws.WorkingProfilePath(),
		ReadingsPath:   plan.EntriesPaths[date],
		TreatmentsPath: plan.TreatmentsPath,
		ArchivePath:    l.ws.ArchivePath(date),
		PrepPath:       l.ws.PrepOutputPath(date),
		CandidatePath:  l.ws.CoreOutputPath(date),
		Profile:        current,
		State:          StatePending,
	}
}

func (l *Loop) runDay(ctx context.Context, day *DayState) error {
	logger := l.logger.With("date", day.Date)

	if err := ctx.Err(); err != nil {
		return err
	}

	// The archive is audit only and never read back.
	if err := l.ws.WriteFile(day.ArchivePath, day.Profile); err != nil {
		return err
	}
	if err := l.ws.WriteFile(day.ProfilePath, day.Profile); err != nil {
		return err
	}

	day.State = StatePreparing
	if day.ReadingsPath == "" {
		return &MissingReadingBucketError{Date: day.Date}
	}
	logger.Info("running autotune prep")
	if err := l.opt.Prep(ctx, optimizer.PrepRequest{
		TreatmentsPath: day.TreatmentsPath,
		ProfilePath:    day.ProfilePath,
		EntriesPath:    day.ReadingsPath,
		OutputPath:     day.PrepPath,
	}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	day.State = StateOptimizing
	logger.Info("running autotune core")
	if err := l.opt.Core(ctx, optimizer.CoreRequest{
		PrepOutputPath:  day.PrepPath,
		ProfilePath:     day.ProfilePath,
		PumpProfilePath: l.ws.PumpProfilePath(),
		OutputPath:      day.CandidatePath,
	}); err != nil {
		return err
	}
	refined, err := os.ReadFile(day.CandidatePath)
	if err != nil {
		return &optimizer.StepError{Step: optimizer.StepCore, Err: fmt.Errorf("failed to read candidate profile: %w", err)}
	}
	if !json.Valid(refined) {
		return &optimizer.StepError{Step: optimizer.StepCore, Err: fmt.Errorf("candidate profile %s is not valid JSON", day.CandidatePath)}
	}
	day.Refined = refined
	if err := l.ws.WriteFile(day.ProfilePath, refined); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	day.State = StateReporting
	logger.Debug("running autotune report")
	if err := l.opt.Report(ctx, l.ws.Root()); err != nil {
		return err
	}

	day.State = StateAdvancing
	return nil
}

// finish closes the run in the history. History write failures are only
// logged.
func (l *Loop) finish(runID string, runErr error) {
	end := &recorder.RunEnd{ID: runID, Status: recorder.StatusSucceeded, FinishedAt: time.Now()}
	if runErr != nil {
		end.Status = recorder.StatusFailed
		end.Err = runErr.Error()
	}
	l.record(l.rec.RecordRunEnd(end))
}

func (l *Loop) record(err error) {
	if err != nil {
		l.logger.Warn("failed to record run history", "error", err)
	}
}
