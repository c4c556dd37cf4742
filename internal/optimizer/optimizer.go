// Package optimizer runs the oref0 autotune steps as external processes.
package optimizer

import (
	"context"
	"fmt"
)

type Step string

const (
	StepPrep   Step = "prep"
	StepCore   Step = "core"
	StepReport Step = "report"
)

// PrepRequest names the inputs of the prep step and the file its stdout goes to.
type PrepRequest struct {
	TreatmentsPath string
	ProfilePath    string
	EntriesPath    string
	OutputPath     string
}

// CoreRequest names the inputs of the core step. OutputPath receives the
// candidate profile.
type CoreRequest struct {
	PrepOutputPath  string
	ProfilePath     string
	PumpProfilePath string
	OutputPath      string
}

// Optimizer is the contract of the external tuning program. Every call
// blocks until the step exits.
type Optimizer interface {
	Prep(ctx context.Context, req PrepRequest) error
	Core(ctx context.Context, req CoreRequest) error
	Report(ctx context.Context, dataDir string) error
}

// StepError reports a step that could not be started or exited non-zero.
type StepError struct {
	Step   Step
	Err    error
	Stderr string
}

func (e *StepError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("optimizer %s step failed: %v: %s", e.Step, e.Err, e.Stderr)
	}
	return fmt.Sprintf("optimizer %s step failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
