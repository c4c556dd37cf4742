package pipeline

import (
	"github.com/strrl/tp-autotune/internal/parser"
)

const msPerMinute = 60 * 1000

type Classifier struct{}

func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify maps an event to its treatment record. ok is false for events
// that have no treatment form: scheduled basals (already part of the
// profile) and every non-treatment type.
func (c *Classifier) Classify(ev parser.Event) (Treatment, bool, error) {
	switch e := ev.(type) {
	case *parser.Basal:
		if !e.IsTemp() {
			return nil, false, nil
		}
		if e.Rate == nil {
			return nil, false, parser.NewMalformedEventError(e, "rate")
		}
		if e.Duration == nil {
			return nil, false, parser.NewMalformedEventError(e, "duration")
		}
		return &TempBasal{
			EventType: EventTempBasal,
			Timestamp: e.RawTime(),
			Rate:      *e.Rate,
			Duration:  *e.Duration / msPerMinute,
		}, true, nil

	case *parser.Bolus:
		if e.Normal == nil {
			return nil, false, parser.NewMalformedEventError(e, "normal")
		}
		return &Bolus{
			EventType: EventBolus,
			Timestamp: e.RawTime(),
			Amount:    *e.Normal,
		}, true, nil

	case *parser.Wizard:
		if e.CarbInput == nil {
			return nil, false, parser.NewMalformedEventError(e, "carbInput")
		}
		return &BolusWizard{
			Type:      EventBolusWizard,
			Timestamp: e.RawTime(),
			Carbs:     *e.CarbInput,
		}, true, nil
	}

	return nil, false, nil
}
