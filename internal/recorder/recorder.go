package recorder

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// RunStart describes a refinement run as it begins.
type RunStart struct {
	ID        string
	Source    string
	StartDate string
	EndDate   string
	StartedAt time.Time
}

// DayOutcome is the last state a day reached and, on failure, why it stopped.
type DayOutcome struct {
	RunID       string
	Date        string
	State       string
	ProfilePath string
	Err         string
}

// RunEnd closes a run with its final status.
type RunEnd struct {
	ID         string
	Status     string // StatusSucceeded or StatusFailed
	Err        string
	FinishedAt time.Time
}

// Run is one row of the run history.
type Run struct {
	ID         string
	Source     string
	StartDate  string
	EndDate    string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Status     string
	Err        string
	Days       int
}

// Recorder persists the history of refinement runs.
type Recorder interface {
	RecordRunStart(run *RunStart) error
	RecordDay(day *DayOutcome) error
	RecordRunEnd(run *RunEnd) error
	Runs(limit int) ([]Run, error)
	Close() error
}

func NewRunID() string {
	return uuid.NewString()
}
