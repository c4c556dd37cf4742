package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strrl/tp-autotune/internal/parser"
	"github.com/strrl/tp-autotune/internal/workspace"
)

func mustParse(t *testing.T, export string) []parser.Event {
	t.Helper()
	events, err := parser.Parse([]byte(export))
	require.NoError(t, err)
	return events
}

func day(s string) time.Time {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func defaultWindow(start, end string) Window {
	return NewWindow(day(start), day(end), DefaultLookback, DefaultLookahead)
}

func TestClassifier_Classify(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name   string
		record string
		want   Treatment
		ok     bool
		field  string
	}{
		{
			name:   "temp basal",
			record: `{"type": "basal", "time": "2020-01-01T10:00:00.000Z", "deliveryType": "temp", "rate": 0.35, "duration": 1800000}`,
			want:   &TempBasal{EventType: EventTempBasal, Timestamp: "2020-01-01T10:00:00.000Z", Rate: 0.35, Duration: 30},
			ok:     true,
		},
		{
			name:   "bolus",
			record: `{"type": "bolus", "time": "2020-01-01T12:00:00Z", "normal": 4.2}`,
			want:   &Bolus{EventType: EventBolus, Timestamp: "2020-01-01T12:00:00Z", Amount: 4.2},
			ok:     true,
		},
		{
			name:   "wizard",
			record: `{"type": "wizard", "time": "2020-01-01T12:00:00Z", "carbInput": 60, "bolus": "abc"}`,
			want:   &BolusWizard{Type: EventBolusWizard, Timestamp: "2020-01-01T12:00:00Z", Carbs: 60},
			ok:     true,
		},
		{
			name:   "scheduled basal",
			record: `{"type": "basal", "time": "2020-01-01T10:00:00Z", "deliveryType": "scheduled", "rate": 0.8, "duration": 3600000}`,
		},
		{
			name:   "cbg",
			record: `{"type": "cbg", "time": "2020-01-01T10:00:00Z", "value": 6.1}`,
		},
		{
			name:   "unrecognized",
			record: `{"type": "smbg", "time": "2020-01-01T10:00:00Z", "value": 6.1}`,
		},
		{
			name:   "temp basal without rate",
			record: `{"type": "basal", "time": "2020-01-01T10:00:00Z", "deliveryType": "temp", "duration": 1800000}`,
			field:  "rate",
		},
		{
			name:   "temp basal without duration",
			record: `{"type": "basal", "time": "2020-01-01T10:00:00Z", "deliveryType": "temp", "rate": 0}`,
			field:  "duration",
		},
		{
			name:   "bolus without normal",
			record: `{"type": "bolus", "time": "2020-01-01T12:00:00Z", "extended": 2}`,
			field:  "normal",
		},
		{
			name:   "wizard without carbs",
			record: `{"type": "wizard", "time": "2020-01-01T12:00:00Z"}`,
			field:  "carbInput",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := parser.Decode([]byte(tt.record))
			require.NoError(t, err)

			got, ok, err := c.Classify(ev)
			if tt.field != "" {
				var malformed *parser.MalformedEventError
				require.True(t, errors.As(err, &malformed))
				assert.Equal(t, tt.field, malformed.Field)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
			if ok {
				assert.Equal(t, ev.RawTime(), got.Time())
			}
		})
	}
}

func TestClassifier_TimestampRoundTrip(t *testing.T) {
	c := NewClassifier()
	ev, err := parser.Decode([]byte(`{"type": "bolus", "time": "2020-03-04T05:06:07.890Z", "normal": 1}`))
	require.NoError(t, err)

	first, ok, err := c.Classify(ev)
	require.NoError(t, err)
	require.True(t, ok)

	again, err := parser.Decode([]byte(`{"type": "bolus", "time": "` + first.Time() + `", "normal": 1}`))
	require.NoError(t, err)
	second, _, err := c.Classify(again)
	require.NoError(t, err)

	assert.Equal(t, first.Time(), second.Time())
	assert.True(t, ev.Timestamp().Equal(again.Timestamp()))
}

func TestWindow(t *testing.T) {
	w := defaultWindow("2020-01-02", "2020-01-02")

	assert.Equal(t, time.Date(2020, 1, 1, 20, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC), w.End)
	assert.True(t, w.Contains(w.Start))
	assert.False(t, w.Contains(w.End))
	assert.False(t, w.Contains(w.Start.Add(-time.Millisecond)))
}

func TestPartitionReadings_LookbackLandsOnPreviousDate(t *testing.T) {
	events := mustParse(t, `[
		{"type": "cbg", "time": "2020-01-01T19:59:59Z", "value": 4.0},
		{"type": "cbg", "time": "2020-01-01T23:00:00Z", "value": 5.0},
		{"type": "cbg", "time": "2020-01-02T08:00:00Z", "value": 6.0},
		{"type": "cbg", "time": "2020-01-02T09:00:00Z", "value": 7.0},
		{"type": "cbg", "time": "2020-01-03T00:00:00Z", "value": 8.0}
	]`)

	buckets, err := PartitionReadings(events, defaultWindow("2020-01-02", "2020-01-02"))
	require.NoError(t, err)

	assert.Equal(t, []string{"2020-01-01", "2020-01-02"}, buckets.Dates())
	require.Len(t, buckets["2020-01-01"], 1)
	assert.Equal(t, "2020-01-01T23:00:00Z", buckets["2020-01-01"][0].Date)
	assert.Equal(t, "2020-01-01T23:00:00Z", buckets["2020-01-01"][0].DateString)
	assert.InDelta(t, 90.07795, buckets["2020-01-01"][0].Glucose, 1e-6)

	require.Len(t, buckets["2020-01-02"], 2)
	assert.Equal(t, "2020-01-02T08:00:00Z", buckets["2020-01-02"][0].Date)
	assert.Equal(t, "2020-01-02T09:00:00Z", buckets["2020-01-02"][1].Date)
}

func TestPartitionReadings_BucketsStayInsideWindow(t *testing.T) {
	var records []map[string]any
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4*24*12; i++ {
		records = append(records, map[string]any{
			"type":  "cbg",
			"time":  start.Add(time.Duration(i) * 5 * time.Minute).Format(time.RFC3339),
			"value": 5.5,
		})
	}
	data, err := json.Marshal(records)
	require.NoError(t, err)

	events := mustParse(t, string(data))
	w := defaultWindow("2020-01-02", "2020-01-03")
	buckets, err := PartitionReadings(events, w)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for date, readings := range buckets {
		for _, r := range readings {
			at, err := time.Parse(time.RFC3339, r.Date)
			require.NoError(t, err)
			assert.True(t, w.Contains(at))
			assert.Equal(t, date, at.UTC().Format(DateLayout))
			assert.False(t, seen[r.Date], "reading %s in two buckets", r.Date)
			seen[r.Date] = true
		}
	}
	assert.Equal(t, []string{"2020-01-01", "2020-01-02", "2020-01-03"}, buckets.Dates())
}

func TestPartitionReadings_MissingValue(t *testing.T) {
	events := mustParse(t, `[{"type": "cbg", "time": "2020-01-02T08:00:00Z"}]`)
	_, err := PartitionReadings(events, defaultWindow("2020-01-02", "2020-01-02"))

	var malformed *parser.MalformedEventError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, "value", malformed.Field)
}

func TestTranslate_ExcludesScheduledBasal(t *testing.T) {
	events := mustParse(t, `[
		{"type": "basal", "time": "2020-01-02T01:00:00Z", "deliveryType": "scheduled", "rate": 0.8, "duration": 3600000},
		{"type": "basal", "time": "2020-01-02T02:00:00Z", "deliveryType": "temp", "rate": 0.2, "duration": 600000},
		{"type": "basal", "time": "2020-01-02T03:00:00Z", "deliveryType": "suspend", "duration": 600000}
	]`)

	treatments, err := Translate(events, defaultWindow("2020-01-02", "2020-01-02"))
	require.NoError(t, err)
	require.Len(t, treatments, 1)
	assert.Equal(t, &TempBasal{EventType: EventTempBasal, Timestamp: "2020-01-02T02:00:00Z", Rate: 0.2, Duration: 10}, treatments[0])
}

func TestTranslate_PreservesOrderAndWindow(t *testing.T) {
	events := mustParse(t, `[
		{"type": "bolus", "time": "2020-01-01T10:00:00Z", "normal": 9},
		{"type": "wizard", "time": "2020-01-02T12:00:00Z", "carbInput": 30},
		{"type": "bolus", "time": "2020-01-02T12:00:00Z", "normal": 3},
		{"type": "cbg", "time": "2020-01-02T12:05:00Z", "value": 7},
		{"type": "bolus", "time": "2020-01-02T18:00:00Z", "normal": 2},
		{"type": "basal", "time": "2020-01-02T19:00:00Z", "deliveryType": "temp", "rate": 1.2, "duration": 1800000},
		{"type": "bolus", "time": "2020-01-03T00:00:00Z", "normal": 8}
	]`)

	treatments, err := Translate(events, defaultWindow("2020-01-02", "2020-01-02"))
	require.NoError(t, err)

	var times []string
	for _, tr := range treatments {
		times = append(times, tr.Time())
	}
	assert.Equal(t, []string{
		"2020-01-02T12:00:00Z",
		"2020-01-02T12:00:00Z",
		"2020-01-02T18:00:00Z",
		"2020-01-02T19:00:00Z",
	}, times)

	// The wizard and its bolus stay separate records.
	assert.IsType(t, &BolusWizard{}, treatments[0])
	assert.IsType(t, &Bolus{}, treatments[1])
}

func TestTranslate_MalformedAborts(t *testing.T) {
	events := mustParse(t, `[
		{"type": "bolus", "time": "2020-01-02T10:00:00Z", "normal": 1},
		{"type": "bolus", "time": "2020-01-02T11:00:00Z"}
	]`)

	_, err := Translate(events, defaultWindow("2020-01-02", "2020-01-02"))
	var malformed *parser.MalformedEventError
	assert.True(t, errors.As(err, &malformed))
}

func TestTranslate_EmptyLogIsArray(t *testing.T) {
	treatments, err := Translate(nil, defaultWindow("2020-01-02", "2020-01-02"))
	require.NoError(t, err)

	data, err := json.Marshal(treatments)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestTreatmentJSON(t *testing.T) {
	data, err := json.Marshal([]Treatment{
		&TempBasal{EventType: EventTempBasal, Timestamp: "t1", Rate: 0.5, Duration: 30},
		&Bolus{EventType: EventBolus, Timestamp: "t2", Amount: 2},
		&BolusWizard{Type: EventBolusWizard, Timestamp: "t3", Carbs: 40},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"eventType": "Temp Basal", "timestamp": "t1", "rate": 0.5, "duration": 30},
		{"eventType": "Bolus", "timestamp": "t2", "amount": 2},
		{"_type": "Bolus Wizard", "timestamp": "t3", "carbs": 40}
	]`, string(data))
}

func TestPipeline_Process(t *testing.T) {
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, ws.Reset())

	events := mustParse(t, `[
		{"type": "cbg", "time": "2020-01-01T23:00:00Z", "value": 5.0},
		{"type": "cbg", "time": "2020-01-02T08:00:00Z", "value": 6.0},
		{"type": "bolus", "time": "2020-01-02T12:00:00Z", "normal": 3}
	]`)

	p := New(defaultWindow("2020-01-02", "2020-01-02"), ws, slog.New(slog.NewTextHandler(io.Discard, nil)))
	out, err := p.Process(context.Background(), events)
	require.NoError(t, err)

	assert.Equal(t, Stats{TotalEvents: 3, Readings: 2, Buckets: 2, Treatments: 1}, out.Stats)
	assert.Equal(t, ws.EntriesPath("2020-01-02"), out.EntriesPaths["2020-01-02"])

	data, err := os.ReadFile(out.EntriesPaths["2020-01-01"])
	require.NoError(t, err)
	var readings []Reading
	require.NoError(t, json.Unmarshal(data, &readings))
	require.Len(t, readings, 1)
	assert.InDelta(t, 90.07795, readings[0].Glucose, 1e-6)

	data, err = os.ReadFile(out.TreatmentsPath)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"eventType": "Bolus", "timestamp": "2020-01-02T12:00:00Z", "amount": 3}]`, string(data))
}
