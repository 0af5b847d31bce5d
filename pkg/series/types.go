package series

import (
	"math"
	"time"
)

// Pair holds a read/write value pair for one channel family.
type Pair struct {
	Read  float64 `json:"read"`
	Write float64 `json:"write"`
}

// Sample is a single point observation. All four channels travel together.
type Sample struct {
	Timestamp  time.Time `json:"timestamp"`
	IOPS       Pair      `json:"iops"`
	Throughput Pair      `json:"throughput"`
}

// Series is an ordered sequence of samples with strictly increasing timestamps.
type Series []Sample

// First returns the first timestamp, or the zero time for an empty series
func (s Series) First() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[0].Timestamp
}

// Last returns the last timestamp, or the zero time for an empty series
func (s Series) Last() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[len(s)-1].Timestamp
}

// Between returns the samples whose timestamps fall in the inclusive window [start, end].
// The result shares no backing array with s.
func (s Series) Between(start, end time.Time) Series {
	out := make(Series, 0)
	for _, sample := range s {
		if sample.Timestamp.Before(start) || sample.Timestamp.After(end) {
			continue
		}
		out = append(out, sample)
	}
	return out
}

// CheckChronological verifies that timestamps strictly increase.
// It returns the index of the first offending sample, or -1.
func (s Series) CheckChronological() int {
	for i := 1; i < len(s); i++ {
		if !s[i].Timestamp.After(s[i-1].Timestamp) {
			return i
		}
	}
	return -1
}

// Round1 rounds v to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// MetricsSeries is the response value of a metrics request. Never persisted.
type MetricsSeries struct {
	EntityID   string
	TimeRange  TimeRange
	Resolution Resolution
	Series     Series
	Metadata   Metadata
}

// AggregationAvg is the only aggregation method the pipeline uses.
const AggregationAvg = "avg"

// Metadata describes the returned series.
type Metadata struct {
	TotalPoints       int       `json:"totalPoints"`
	StartTime         time.Time `json:"startTime"`
	EndTime           time.Time `json:"endTime"`
	AggregationMethod string    `json:"aggregationMethod"`
}

// NewMetadata builds metadata for s.
func NewMetadata(s Series) Metadata {
	return Metadata{
		TotalPoints:       len(s),
		StartTime:         s.First(),
		EndTime:           s.Last(),
		AggregationMethod: AggregationAvg,
	}
}
