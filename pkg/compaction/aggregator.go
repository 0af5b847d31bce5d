package compaction

import (
	"time"

	"github.com/nicktill/clusterwatch/pkg/series"
)

// Hourly is a series derived from raw samples by ToHourly.
// It is the only accepted input of ToDaily.
type Hourly struct {
	points series.Series
}

// Series returns the hourly points.
func (h Hourly) Series() series.Series {
	return h.points
}

// Aggregator averages finer series into coarser buckets
type Aggregator struct {
	now func() time.Time
}

// New creates an aggregator. The clock stamps daily buckets; nil uses time.Now.
func New(now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{now: now}
}

// ToHourly collapses raw samples into one averaged point per non-empty hour.
//
// Input must be chronological with no duplicate timestamps. Empty hours
// produce no point.
func (a *Aggregator) ToHourly(raw series.Series) (Hourly, error) {
	if err := checkInput("hourly", raw); err != nil {
		return Hourly{}, err
	}

	out := collapse(raw, roundTo1Hour)
	return Hourly{points: out}, nil
}

// ToDaily collapses hourly points into one averaged point per calendar day.
//
// Each daily point is stamped with its day's date at the current wall-clock
// hour and minute rather than midnight, so every point of a 90-day chart
// shares the same time of day.
func (a *Aggregator) ToDaily(h Hourly) (series.Series, error) {
	if err := checkInput("daily", h.points); err != nil {
		return nil, err
	}

	now := a.now()
	stamp := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), now.Hour(), now.Minute(), 0, 0, t.Location())
	}
	return collapse(h.points, stamp), nil
}

// collapse walks a chronological series, starting a new bucket whenever the
// bucket key changes. Chronological input keeps buckets contiguous.
func collapse(in series.Series, bucketOf func(time.Time) time.Time) series.Series {
	out := make(series.Series, 0)

	var current *Aggregate
	for _, s := range in {
		bucket := bucketOf(s.Timestamp)
		if current == nil || !bucket.Equal(current.Timestamp) {
			if current != nil {
				out = append(out, current.ToSample())
			}
			current = newAggregate(bucket)
		}
		current.Add(s)
	}
	if current != nil {
		out = append(out, current.ToSample())
	}
	return out
}

func checkInput(stage string, s series.Series) error {
	if len(s) == 0 {
		return &series.AggregationInvariantError{Stage: stage, Index: -1, Reason: "empty input series"}
	}
	if i := s.CheckChronological(); i >= 0 {
		return &series.AggregationInvariantError{Stage: stage, Index: i, Reason: "timestamps not strictly increasing"}
	}
	return nil
}

// roundTo1Hour rounds a timestamp down to the nearest hour on the absolute
// timeline, so the repeated hour of a DST fall-back stays two buckets.
func roundTo1Hour(t time.Time) time.Time {
	return t.Truncate(time.Hour)
}
