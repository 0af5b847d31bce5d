package compaction

import (
	"time"

	"github.com/nicktill/clusterwatch/pkg/series"
)

// Aggregate stores the running totals of one time bucket.
// We keep sums and a count rather than a running mean so that the final
// average is exact before rounding.
type Aggregate struct {
	// Bucket start (or stamp, for daily buckets)
	Timestamp time.Time

	Count              uint64
	IOPSReadSum        float64
	IOPSWriteSum       float64
	ThroughputReadSum  float64
	ThroughputWriteSum float64
}

func newAggregate(ts time.Time) *Aggregate {
	return &Aggregate{Timestamp: ts}
}

// Add folds a sample into the bucket.
func (a *Aggregate) Add(s series.Sample) {
	a.IOPSReadSum += s.IOPS.Read
	a.IOPSWriteSum += s.IOPS.Write
	a.ThroughputReadSum += s.Throughput.Read
	a.ThroughputWriteSum += s.Throughput.Write
	a.Count++
}

// ToSample returns the bucket mean, each channel rounded to one decimal.
func (a *Aggregate) ToSample() series.Sample {
	return series.Sample{
		Timestamp: a.Timestamp,
		IOPS: series.Pair{
			Read:  a.mean(a.IOPSReadSum),
			Write: a.mean(a.IOPSWriteSum),
		},
		Throughput: series.Pair{
			Read:  a.mean(a.ThroughputReadSum),
			Write: a.mean(a.ThroughputWriteSum),
		},
	}
}

func (a *Aggregate) mean(sum float64) float64 {
	if a.Count == 0 {
		return 0
	}
	return series.Round1(sum / float64(a.Count))
}
