package pipeline

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/strrl/tp-autotune/internal/aggregator"
	"github.com/strrl/tp-autotune/internal/parser"
	"github.com/strrl/tp-autotune/internal/workspace"
)

// Buckets maps a UTC calendar date to that day's readings in input order.
// Dates without readings have no key.
type Buckets map[string][]Reading

func (b Buckets) Dates() []string {
	dates := make([]string, 0, len(b))
	for d := range b {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// PartitionReadings groups the cbg events inside the window by UTC date and
// converts them to mg/dL.
func PartitionReadings(events []parser.Event, w Window) (Buckets, error) {
	buckets := make(Buckets)
	for _, cbg := range NewFilter(w).Readings(events) {
		if cbg.Value == nil {
			return nil, parser.NewMalformedEventError(cbg, "value")
		}
		day := cbg.Timestamp().UTC().Format(DateLayout)
		buckets[day] = append(buckets[day], Reading{
			Glucose:    *cbg.Value * aggregator.GlucoseScale,
			Date:       cbg.RawTime(),
			DateString: cbg.RawTime(),
		})
	}
	return buckets, nil
}

// WriteBuckets writes one entries file per bucket and returns the path of
// each by date. Buckets never share a file, so the writes run in parallel.
func WriteBuckets(ctx context.Context, ws *workspace.Workspace, buckets Buckets) (map[string]string, error) {
	paths := make(map[string]string, len(buckets))
	for date := range buckets {
		paths[date] = ws.EntriesPath(date)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for date, readings := range buckets {
		path := paths[date]
		readings := readings
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return ws.WriteJSON(path, readings)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return paths, nil
}
