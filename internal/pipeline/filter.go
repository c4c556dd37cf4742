package pipeline

import (
	"fmt"
	"time"

	"github.com/strrl/tp-autotune/internal/parser"
)

const DateLayout = "2006-01-02"

const (
	DefaultLookback  = 4 * time.Hour
	DefaultLookahead = 24 * time.Hour
)

// Window is the half-open interval [Start, End) of event times fed to the
// optimizer. It is wider than the tuning range so the optimizer sees some
// context on both sides.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow pads the inclusive date range [rangeStart, rangeEnd]. Dates are
// taken as UTC midnights.
func NewWindow(rangeStart, rangeEnd time.Time, lookback, lookahead time.Duration) Window {
	return Window{
		Start: rangeStart.Add(-lookback),
		End:   rangeEnd.Add(lookahead),
	}
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

type Filter struct {
	window Window
}

func NewFilter(window Window) *Filter {
	return &Filter{window: window}
}

// Readings keeps the cbg events inside the window.
func (f *Filter) Readings(events []parser.Event) []*parser.Cbg {
	var readings []*parser.Cbg
	for _, ev := range events {
		cbg, ok := ev.(*parser.Cbg)
		if !ok || !f.window.Contains(cbg.Timestamp()) {
			continue
		}
		readings = append(readings, cbg)
	}
	return readings
}

// Treatments keeps temp basals, boluses and wizard entries inside the window.
func (f *Filter) Treatments(events []parser.Event) []parser.Event {
	var kept []parser.Event
	for _, ev := range events {
		if !isTreatment(ev) || !f.window.Contains(ev.Timestamp()) {
			continue
		}
		kept = append(kept, ev)
	}
	return kept
}

func isTreatment(ev parser.Event) bool {
	switch e := ev.(type) {
	case *parser.Basal:
		return e.IsTemp()
	case *parser.Bolus, *parser.Wizard:
		return true
	}
	return false
}
