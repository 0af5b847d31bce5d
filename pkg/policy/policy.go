// Package policy maps a requested time range to its target resolution,
// point budget and source aggregation level.
package policy

import "github.com/nicktill/clusterwatch/pkg/series"

// Entry is one row of the resolution table.
type Entry struct {
	TimeRange    series.TimeRange
	Resolution   series.Resolution
	TargetPoints int
	Source       series.AggregationLevel
}

// Point budgets keep charts in the 60-168 point band.
var table = map[series.TimeRange]Entry{
	series.Range1h:  {series.Range1h, series.Resolution1m, 60, series.LevelRaw},
	series.Range6h:  {series.Range6h, series.Resolution5m, 72, series.LevelRaw},
	series.Range24h: {series.Range24h, series.Resolution15m, 96, series.LevelRaw},
	series.Range7d:  {series.Range7d, series.Resolution1h, 168, series.LevelHourly},
	series.Range30d: {series.Range30d, series.Resolution6h, 120, series.LevelHourly},
	series.Range90d: {series.Range90d, series.Resolution1d, 90, series.LevelDaily},
}

// Default is returned for any range outside the table.
var Default = table[series.DefaultTimeRange]

// For returns the table entry for tr, falling back to Default.
func For(tr series.TimeRange) Entry {
	if e, ok := table[tr]; ok {
		return e
	}
	return Default
}

// Ranges returns all entries ordered by span.
func Ranges() []Entry {
	ranges := series.AllTimeRanges()
	entries := make([]Entry, 0, len(ranges))
	for _, tr := range ranges {
		entries = append(entries, table[tr])
	}
	return entries
}
