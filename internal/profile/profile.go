package profile

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/strrl/tp-autotune/internal/aggregator"
	"github.com/strrl/tp-autotune/internal/parser"
	"github.com/strrl/tp-autotune/internal/workspace"
)

//go:embed template.json
var defaultTemplate []byte

var ErrMissingPumpSettings = errors.New("export has no pumpSettings event")

// Document is an optimizer profile. It is kept generic so that every field
// of the template the tool does not set passes through untouched.
type Document map[string]any

func DefaultTemplate() (Document, error) {
	return decode(defaultTemplate)
}

// LoadTemplate reads a profile template, falling back to the built-in one
// when path is empty.
func LoadTemplate(path string) (Document, error) {
	if path == "" {
		return DefaultTemplate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}

	doc, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", path, err)
	}
	return doc, nil
}

func decode(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Clone returns a deep copy of the document.
func (d Document) Clone() (Document, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to copy profile: %w", err)
	}
	return decode(data)
}

// Build derives the baseline profile from the most recent pump settings in
// events (sorted by time). Only the basal profile, the first sensitivity and
// the carb ratio of the template are replaced.
func Build(events []parser.Event, template Document) (Document, error) {
	ps := lastPumpSettings(events)
	if ps == nil {
		return nil, ErrMissingPumpSettings
	}

	basal, ok := ps.BasalSchedules[ps.ActiveSchedule]
	if !ok || len(basal) == 0 {
		return nil, parser.NewMalformedEventError(ps, "basalSchedules."+ps.ActiveSchedule)
	}
	basalSegments := make([]aggregator.BasalSegment, len(basal))
	check := make([]aggregator.Segment, len(basal))
	for i, b := range basal {
		basalSegments[i] = aggregator.BasalSegment{Start: b.Start, Rate: b.Rate}
		check[i] = aggregator.Segment{Start: b.Start, Amount: b.Rate}
	}
	if err := aggregator.ValidateSchedule(check); err != nil {
		return nil, fmt.Errorf("basal schedule: %w", err)
	}

	isfSchedule, err := resolveSchedule(ps, ps.InsulinSensitivities, ps.InsulinSensitivity, "insulinSensitivities", "insulinSensitivity")
	if err != nil {
		return nil, err
	}
	isf, err := aggregator.TimeWeightedAverage(isfSchedule, aggregator.GlucoseScale)
	if err != nil {
		return nil, fmt.Errorf("insulin sensitivity schedule: %w", err)
	}

	crSchedule, err := resolveSchedule(ps, ps.CarbRatios, ps.CarbRatio, "carbRatios", "carbRatio")
	if err != nil {
		return nil, err
	}
	carbRatio, err := aggregator.TimeWeightedAverage(crSchedule, 1)
	if err != nil {
		return nil, fmt.Errorf("carb ratio schedule: %w", err)
	}

	doc, err := template.Clone()
	if err != nil {
		return nil, err
	}

	doc["basalprofile"] = aggregator.BasalToProfileEntries(basalSegments)

	if err := setFirstSensitivity(doc, isf); err != nil {
		return nil, err
	}
	doc["carb_ratio"] = carbRatio

	return doc, nil
}

func lastPumpSettings(events []parser.Event) *parser.PumpSettings {
	var last *parser.PumpSettings
	for _, ev := range events {
		if ps, ok := ev.(*parser.PumpSettings); ok {
			last = ps
		}
	}
	return last
}

// resolveSchedule prefers the per-schedule form, indexed by the active
// schedule name, over the single-schedule form.
func resolveSchedule(ps *parser.PumpSettings, byName map[string][]parser.ScheduleEntry, single []parser.ScheduleEntry, byNameField, singleField string) ([]aggregator.Segment, error) {
	var entries []parser.ScheduleEntry
	switch {
	case byName != nil:
		named, ok := byName[ps.ActiveSchedule]
		if !ok {
			return nil, parser.NewMalformedEventError(ps, byNameField+"."+ps.ActiveSchedule)
		}
		entries = named
	case single != nil:
		entries = single
	default:
		return nil, parser.NewMalformedEventError(ps, singleField)
	}

	segments := make([]aggregator.Segment, len(entries))
	for i, e := range entries {
		segments[i] = aggregator.Segment{Start: e.Start, Amount: e.Amount}
	}
	return segments, nil
}

func setFirstSensitivity(doc Document, isf float64) error {
	isfProfile, ok := doc["isfProfile"].(map[string]any)
	if !ok {
		return fmt.Errorf("template has no isfProfile object")
	}
	sensitivities, ok := isfProfile["sensitivities"].([]any)
	if !ok || len(sensitivities) == 0 {
		return fmt.Errorf("template has no isfProfile.sensitivities entries")
	}
	first, ok := sensitivities[0].(map[string]any)
	if !ok {
		return fmt.Errorf("template isfProfile.sensitivities[0] is not an object")
	}
	first["sensitivity"] = isf
	return nil
}

// WriteArtifacts writes the baseline profile and its four copies, returning
// the bytes written so the caller can seed the refinement chain with them.
func WriteArtifacts(ws *workspace.Workspace, doc Document) ([]byte, error) {
	data, err := workspace.MarshalJSON(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal profile: %w", err)
	}

	if err := ws.WriteFile(ws.ProfilePath(), data); err != nil {
		return nil, err
	}
	for _, path := range ws.ProfileCopyPaths() {
		if err := ws.WriteFile(path, data); err != nil {
			return nil, err
		}
	}

	return data, nil
}
