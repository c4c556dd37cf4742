package pipeline

import (
	"fmt"

	"github.com/strrl/tp-autotune/internal/parser"
)

// UnhandledEventError means an event passed the treatment filter but the
// classifier has no treatment form for it, i.e. the two disagree.
type UnhandledEventError struct {
	Event parser.Event
}

func (e *UnhandledEventError) Error() string {
	return fmt.Sprintf("unhandled %s event at %q", e.Event.Kind(), e.Event.RawTime())
}

// Translate builds the treatment log for the window, in event order.
func Translate(events []parser.Event, w Window) ([]Treatment, error) {
	classifier := NewClassifier()

	treatments := []Treatment{}
	for _, ev := range NewFilter(w).Treatments(events) {
		t, ok, err := classifier.Classify(ev)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &UnhandledEventError{Event: ev}
		}
		treatments = append(treatments, t)
	}

	return treatments, nil
}
