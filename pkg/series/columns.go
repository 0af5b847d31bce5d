package series

import (
	"encoding/json"
	"fmt"
	"time"
)

// PairColumns is the columnar form of a Pair channel family.
type PairColumns struct {
	Read  []float64 `json:"read"`
	Write []float64 `json:"write"`
}

// Columns is the columnar form of a Series, used on the wire and on disk.
// Every array shares one length and index alignment with Timestamps.
type Columns struct {
	Timestamps []int64     `json:"timestamps"` // unix milliseconds
	IOPS       PairColumns `json:"iops"`
	Throughput PairColumns `json:"throughput"`
}

// ToColumns converts s to columnar form.
func (s Series) ToColumns() Columns {
	c := Columns{
		Timestamps: make([]int64, len(s)),
		IOPS: PairColumns{
			Read:  make([]float64, len(s)),
			Write: make([]float64, len(s)),
		},
		Throughput: PairColumns{
			Read:  make([]float64, len(s)),
			Write: make([]float64, len(s)),
		},
	}
	for i, sample := range s {
		c.Timestamps[i] = sample.Timestamp.UnixMilli()
		c.IOPS.Read[i] = sample.IOPS.Read
		c.IOPS.Write[i] = sample.IOPS.Write
		c.Throughput.Read[i] = sample.Throughput.Read
		c.Throughput.Write[i] = sample.Throughput.Write
	}
	return c
}

// Validate checks the alignment invariant and timestamp ordering.
func (c Columns) Validate() error {
	n := len(c.Timestamps)
	lengths := map[string]int{
		"iops.read":        len(c.IOPS.Read),
		"iops.write":       len(c.IOPS.Write),
		"throughput.read":  len(c.Throughput.Read),
		"throughput.write": len(c.Throughput.Write),
	}
	for name, l := range lengths {
		if l != n {
			return fmt.Errorf("column %s has %d values, want %d", name, l, n)
		}
	}
	for i := 1; i < n; i++ {
		if c.Timestamps[i] <= c.Timestamps[i-1] {
			return fmt.Errorf("timestamps not strictly increasing at index %d", i)
		}
	}
	return nil
}

// Series converts columns back to row form after validating them.
func (c Columns) Series() (Series, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	s := make(Series, len(c.Timestamps))
	for i, ts := range c.Timestamps {
		s[i] = Sample{
			Timestamp:  time.UnixMilli(ts).UTC(),
			IOPS:       Pair{Read: c.IOPS.Read[i], Write: c.IOPS.Write[i]},
			Throughput: Pair{Read: c.Throughput.Read[i], Write: c.Throughput.Write[i]},
		}
	}
	return s, nil
}

// MarshalJSON renders the response with columnar data.
func (m MetricsSeries) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		EntityID   string     `json:"entityId"`
		TimeRange  TimeRange  `json:"timeRange"`
		Resolution Resolution `json:"resolution"`
		Data       Columns    `json:"data"`
		Metadata   Metadata   `json:"metadata"`
	}{
		EntityID:   m.EntityID,
		TimeRange:  m.TimeRange,
		Resolution: m.Resolution,
		Data:       m.Series.ToColumns(),
		Metadata:   m.Metadata,
	})
}
