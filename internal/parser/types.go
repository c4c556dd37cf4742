package parser

import (
	"time"
)

type EventType string

const (
	TypePumpSettings EventType = "pumpSettings"
	TypeCbg          EventType = "cbg"
	TypeBasal        EventType = "basal"
	TypeBolus        EventType = "bolus"
	TypeWizard       EventType = "wizard"
)

// DeliveryTemp marks a basal record that overrides the scheduled rate.
const DeliveryTemp = "temp"

// Event is one decoded record of the export. The concrete type is one of
// *PumpSettings, *Cbg, *Basal, *Bolus, *Wizard or *Unrecognized.
type Event interface {
	Kind() EventType
	Timestamp() time.Time
	RawTime() string
	event()
}

type header struct {
	Type EventType `json:"type"`
	Time string    `json:"time"`

	at time.Time
}

func (h *header) Kind() EventType     { return h.Type }
func (h *header) Timestamp() time.Time { return h.at }
func (h *header) RawTime() string      { return h.Time }
func (h *header) event()               {}

func (h *header) stamp(at time.Time) { h.at = at }

// ScheduleEntry is one breakpoint of a sensitivity or carb ratio schedule.
// Start is the offset from midnight in milliseconds.
type ScheduleEntry struct {
	Start  int64   `json:"start"`
	Amount float64 `json:"amount"`
}

type BasalScheduleEntry struct {
	Start int64   `json:"start"`
	Rate  float64 `json:"rate"`
}

type PumpSettings struct {
	header
	ActiveSchedule       string                          `json:"activeSchedule"`
	BasalSchedules       map[string][]BasalScheduleEntry `json:"basalSchedules"`
	InsulinSensitivity   []ScheduleEntry                 `json:"insulinSensitivity"`
	InsulinSensitivities map[string][]ScheduleEntry      `json:"insulinSensitivities"`
	CarbRatio            []ScheduleEntry                 `json:"carbRatio"`
	CarbRatios           map[string][]ScheduleEntry      `json:"carbRatios"`
}

// Cbg is a continuous glucose reading, in mmol/L.
type Cbg struct {
	header
	Value *float64 `json:"value"`
	Units string   `json:"units"`
}

type Basal struct {
	header
	DeliveryType string   `json:"deliveryType"`
	Rate         *float64 `json:"rate"`
	Duration     *float64 `json:"duration"` // milliseconds
}

func (b *Basal) IsTemp() bool {
	return b.DeliveryType == DeliveryTemp
}

type Bolus struct {
	header
	SubType string   `json:"subType"`
	Normal  *float64 `json:"normal"`
}

type Wizard struct {
	header
	CarbInput *float64 `json:"carbInput"`
}

// Unrecognized keeps the tag and time of any record type the tool does not use.
type Unrecognized struct {
	header
}
