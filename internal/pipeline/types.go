package pipeline

// Treatment is one record of the optimizer's treatment log: *TempBasal,
// *Bolus or *BolusWizard.
type Treatment interface {
	Time() string
	treatment()
}

const (
	EventTempBasal   = "Temp Basal"
	EventBolus       = "Bolus"
	EventBolusWizard = "Bolus Wizard"
)

type TempBasal struct {
	EventType string  `json:"eventType"`
	Timestamp string  `json:"timestamp"`
	Rate      float64 `json:"rate"`
	Duration  float64 `json:"duration"` // minutes
}

type Bolus struct {
	EventType string  `json:"eventType"`
	Timestamp string  `json:"timestamp"`
	Amount    float64 `json:"amount"`
}

// BolusWizard carries only the carb entry. It is tagged with _type rather
// than eventType so the optimizer counts the carbs without expecting insulin;
// the matching delivery arrives as its own Bolus record.
type BolusWizard struct {
	Type      string  `json:"_type"`
	Timestamp string  `json:"timestamp"`
	Carbs     float64 `json:"carbs"`
}

func (t *TempBasal) Time() string   { return t.Timestamp }
func (b *Bolus) Time() string       { return b.Timestamp }
func (w *BolusWizard) Time() string { return w.Timestamp }

func (*TempBasal) treatment()   {}
func (*Bolus) treatment()       {}
func (*BolusWizard) treatment() {}

// Reading is one glucose entry of a day bucket, in mg/dL.
type Reading struct {
	Glucose    float64 `json:"glucose"`
	Date       string  `json:"date"`
	DateString string  `json:"dateString"`
}
