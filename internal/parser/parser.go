package parser

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/relvacode/iso8601"
)

// Load reads an export file (a JSON array of records) and returns its events
// sorted by time.
func Load(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read export: %w", err)
	}

	events, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return events, nil
}

// Parse decodes every record of an export and sorts the result by time.
// Records with equal timestamps keep their export order.
func Parse(data []byte) ([]Event, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("export is not a JSON array: %w", err)
	}

	events := make([]Event, 0, len(raw))
	for i, r := range raw {
		ev, err := Decode(r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		events = append(events, ev)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp().Before(events[j].Timestamp())
	})

	return events, nil
}

// Decode turns one export record into its typed variant.
func Decode(raw json.RawMessage) (Event, error) {
	var h header
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("failed to decode record header: %w", err)
	}

	var ev Event
	var target any
	switch h.Type {
	case TypePumpSettings:
		e := &PumpSettings{}
		ev, target = e, e
	case TypeCbg:
		e := &Cbg{}
		ev, target = e, e
	case TypeBasal:
		e := &Basal{}
		ev, target = e, e
	case TypeBolus:
		e := &Bolus{}
		ev, target = e, e
	case TypeWizard:
		e := &Wizard{}
		ev, target = e, e
	default:
		u := &Unrecognized{header: h}
		if at, err := iso8601.ParseString(h.Time); err == nil {
			u.at = at
		}
		return u, nil
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("failed to decode %s record: %w", h.Type, err)
	}

	at, err := iso8601.ParseString(h.Time)
	if err != nil {
		return nil, &MalformedEventError{Type: h.Type, Time: h.Time, Field: "time"}
	}
	setTime(ev, at)

	return ev, nil
}

type stamped interface {
	stamp(at time.Time)
}

func setTime(ev Event, at time.Time) {
	ev.(stamped).stamp(at)
}
