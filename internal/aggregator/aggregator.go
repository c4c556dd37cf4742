package aggregator

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DayMillis is the length of one schedule cycle.
	DayMillis int64 = 24 * 60 * 60 * 1000

	// GlucoseScale converts mmol/L to mg/dL.
	GlucoseScale = 18.01559
)

var ErrInvalidSchedule = errors.New("invalid schedule")

// Segment is one breakpoint of a day-cyclic step function. Start is the
// offset from midnight in milliseconds; the segment lasts until the next
// breakpoint or the end of the day.
type Segment struct {
	Start  int64
	Amount float64
}

type BasalSegment struct {
	Start int64
	Rate  float64
}

// BasalEntry is the basal profile shape the optimizer reads.
type BasalEntry struct {
	Start   string  `json:"start"`
	Minutes int     `json:"minutes"`
	Rate    float64 `json:"rate"`
}

// ValidateSchedule checks that the schedule is non-empty, starts at
// midnight and has ascending breakpoints that all fall within one day.
func ValidateSchedule(schedule []Segment) error {
	if len(schedule) == 0 {
		return fmt.Errorf("%w: no entries", ErrInvalidSchedule)
	}
	if schedule[0].Start != 0 {
		return fmt.Errorf("%w: first entry starts at %dms, not midnight", ErrInvalidSchedule, schedule[0].Start)
	}

	for i, seg := range schedule {
		end := DayMillis
		if i < len(schedule)-1 {
			end = schedule[i+1].Start
		}
		if seg.Start >= DayMillis || end < seg.Start {
			return fmt.Errorf("%w: entry %d spans %dms to %dms", ErrInvalidSchedule, i, seg.Start, end)
		}
	}
	return nil
}

// TimeWeightedAverage integrates the schedule over one day, divides by the
// day length and multiplies by unitScale.
func TimeWeightedAverage(schedule []Segment, unitScale float64) (float64, error) {
	if err := ValidateSchedule(schedule); err != nil {
		return 0, err
	}

	var total float64
	for i, seg := range schedule {
		end := DayMillis
		if i < len(schedule)-1 {
			end = schedule[i+1].Start
		}
		total += float64(end-seg.Start) * seg.Amount
	}

	return total / float64(DayMillis) * unitScale, nil
}

// BasalToProfileEntries maps each basal breakpoint to a profile entry,
// keeping the input order. Callers validate the schedule first.
func BasalToProfileEntries(schedule []BasalSegment) []BasalEntry {
	entries := make([]BasalEntry, 0, len(schedule))
	for _, seg := range schedule {
		offset := time.Duration(seg.Start) * time.Millisecond
		entries = append(entries, BasalEntry{
			Start:   time.UnixMilli(seg.Start).UTC().Format("15:04:05"),
			Minutes: int(offset / time.Minute),
			Rate:    seg.Rate,
		})
	}
	return entries
}

// BasalSegments is the inverse of BasalToProfileEntries, used when reading a
// refined profile back.
func BasalSegments(entries []BasalEntry) []Segment {
	segments := make([]Segment, 0, len(entries))
	for _, e := range entries {
		segments = append(segments, Segment{
			Start:  int64(e.Minutes) * int64(time.Minute/time.Millisecond),
			Amount: e.Rate,
		})
	}
	return segments
}
