package profile

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/strrl/tp-autotune/internal/aggregator"
)

// Summary is the handful of values a person compares between two profiles.
type Summary struct {
	Basal       []aggregator.BasalEntry
	Sensitivity float64
	CarbRatio   float64
	DailyBasal  float64 // units per day
}

type summaryDoc struct {
	BasalProfile []struct {
		Start   string  `json:"start"`
		Minutes float64 `json:"minutes"`
		Rate    float64 `json:"rate"`
	} `json:"basalprofile"`
	ISFProfile struct {
		Sensitivities []struct {
			Sensitivity float64 `json:"sensitivity"`
		} `json:"sensitivities"`
	} `json:"isfProfile"`
	CarbRatio float64 `json:"carb_ratio"`
}

// Summarize reads a serialized profile, baseline or optimizer output.
func Summarize(data []byte) (*Summary, error) {
	var doc summaryDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}

	s := &Summary{CarbRatio: doc.CarbRatio}
	for _, b := range doc.BasalProfile {
		s.Basal = append(s.Basal, aggregator.BasalEntry{Start: b.Start, Minutes: int(b.Minutes), Rate: b.Rate})
	}
	if len(doc.ISFProfile.Sensitivities) > 0 {
		s.Sensitivity = doc.ISFProfile.Sensitivities[0].Sensitivity
	}

	if len(s.Basal) > 0 {
		daily, err := aggregator.TimeWeightedAverage(aggregator.BasalSegments(s.Basal), 24)
		if err != nil {
			return nil, fmt.Errorf("basal profile: %w", err)
		}
		s.DailyBasal = daily
	}

	return s, nil
}

// HourlyRates expands the basal profile into the rate in effect at the start
// of each hour of the day. Entries need not be sorted.
func (s *Summary) HourlyRates() []float64 {
	basal := make([]aggregator.BasalEntry, len(s.Basal))
	copy(basal, s.Basal)
	sort.SliceStable(basal, func(i, j int) bool { return basal[i].Minutes < basal[j].Minutes })

	rates := make([]float64, 24)
	for h := range rates {
		for _, b := range basal {
			if b.Minutes > h*60 {
				break
			}
			rates[h] = b.Rate
		}
	}
	return rates
}
