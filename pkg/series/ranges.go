package series

import (
	"fmt"
	"time"
)

// TimeRange is the requested historical span.
type TimeRange string

const (
	Range1h  TimeRange = "1h"
	Range6h  TimeRange = "6h"
	Range24h TimeRange = "24h"
	Range7d  TimeRange = "7d"
	Range30d TimeRange = "30d"
	Range90d TimeRange = "90d"
)

// DefaultTimeRange is used when a request omits the range.
const DefaultTimeRange = Range24h

// AllTimeRanges returns every supported range ordered by span.
func AllTimeRanges() []TimeRange {
	return []TimeRange{Range1h, Range6h, Range24h, Range7d, Range30d, Range90d}
}

// Duration returns the span covered by the range. Unknown ranges return 0.
func (tr TimeRange) Duration() time.Duration {
	switch tr {
	case Range1h:
		return time.Hour
	case Range6h:
		return 6 * time.Hour
	case Range24h:
		return 24 * time.Hour
	case Range7d:
		return 7 * 24 * time.Hour
	case Range30d:
		return 30 * 24 * time.Hour
	case Range90d:
		return 90 * 24 * time.Hour
	default:
		return 0
	}
}

// Valid reports whether tr is one of the supported ranges.
func (tr TimeRange) Valid() bool {
	return tr.Duration() > 0
}

// Less orders ranges by span length.
func (tr TimeRange) Less(other TimeRange) bool {
	return tr.Duration() < other.Duration()
}

func (tr TimeRange) String() string { return string(tr) }

// ParseTimeRange parses a range name such as "7d".
func ParseTimeRange(s string) (TimeRange, error) {
	tr := TimeRange(s)
	if !tr.Valid() {
		return "", fmt.Errorf("unknown time range %q", s)
	}
	return tr, nil
}

// Resolution is the nominal distance between consecutive returned points.
type Resolution string

const (
	Resolution1m  Resolution = "1min"
	Resolution5m  Resolution = "5min"
	Resolution15m Resolution = "15min"
	Resolution1h  Resolution = "1h"
	Resolution6h  Resolution = "6h"
	Resolution1d  Resolution = "1d"
)

// Step returns the nominal spacing for the resolution.
func (r Resolution) Step() time.Duration {
	switch r {
	case Resolution1m:
		return time.Minute
	case Resolution5m:
		return 5 * time.Minute
	case Resolution15m:
		return 15 * time.Minute
	case Resolution1h:
		return time.Hour
	case Resolution6h:
		return 6 * time.Hour
	case Resolution1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Valid reports whether r is a supported resolution.
func (r Resolution) Valid() bool {
	return r.Step() > 0
}

func (r Resolution) String() string { return string(r) }

// ParseResolution parses a resolution name such as "15min".
func ParseResolution(s string) (Resolution, error) {
	r := Resolution(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown resolution %q", s)
	}
	return r, nil
}

// AggregationLevel is the granularity a series was derived at.
type AggregationLevel string

const (
	LevelRaw    AggregationLevel = "raw"    // ingestion granularity
	LevelHourly AggregationLevel = "hourly" // derived from raw
	LevelDaily  AggregationLevel = "daily"  // derived from hourly only
)
