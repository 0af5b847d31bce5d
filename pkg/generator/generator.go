// Package generator produces synthetic per-minute storage telemetry with a
// day/night and weekday/weekend shape. It stands in for a real ingester.
package generator

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/nicktill/clusterwatch/pkg/series"
)

// DefaultSpanDays is the history generated when Config.SpanDays is zero.
const DefaultSpanDays = 90

const weekendMultiplier = 0.8

// ChannelRange is the [Min, Max] band a channel is drawn from at full activity.
type ChannelRange struct {
	Min float64
	Max float64
}

// Channels holds the per-channel ranges.
type Channels struct {
	IOPSRead        ChannelRange
	IOPSWrite       ChannelRange
	ThroughputRead  ChannelRange
	ThroughputWrite ChannelRange
}

// DefaultChannels mirrors the ranges observed on production clusters.
var DefaultChannels = Channels{
	IOPSRead:        ChannelRange{Min: 5000, Max: 70000},
	IOPSWrite:       ChannelRange{Min: 100, Max: 2000},
	ThroughputRead:  ChannelRange{Min: 10, Max: 200},
	ThroughputWrite: ChannelRange{Min: 100, Max: 2000},
}

// Config controls generation.
type Config struct {
	// SpanDays of history to produce, ending at now (0 = DefaultSpanDays)
	SpanDays int

	// Channels overrides DefaultChannels when non-zero
	Channels Channels
}

// Generator produces raw minute series.
type Generator struct {
	spanDays int
	channels Channels

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a generator. A nil rng uses a randomly seeded source.
func New(cfg Config, rng *rand.Rand) *Generator {
	if cfg.SpanDays <= 0 {
		cfg.SpanDays = DefaultSpanDays
	}
	if cfg.Channels == (Channels{}) {
		cfg.Channels = DefaultChannels
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{
		spanDays: cfg.SpanDays,
		channels: cfg.Channels,
		rng:      rng,
	}
}

// SpanDays returns the configured history length.
func (g *Generator) SpanDays() int {
	return g.spanDays
}

// Generate returns SpanDays*1440 samples, one per minute, starting at
// now-SpanDays and ending one minute before now.
func (g *Generator) Generate(now time.Time) series.Series {
	total := g.spanDays * 24 * 60
	start := now.Add(-time.Duration(g.spanDays) * 24 * time.Hour)

	out := make(series.Series, total)

	// rand.Rand is not safe for concurrent use
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := 0; i < total; i++ {
		ts := start.Add(time.Duration(i) * time.Minute)
		activity := HourActivity(ts.Hour()) * g.uniform(0.8, 1.2)
		if isWeekend(ts) {
			activity *= weekendMultiplier
		}

		out[i] = series.Sample{
			Timestamp: ts,
			IOPS: series.Pair{
				Read:  g.draw(g.channels.IOPSRead, activity),
				Write: g.draw(g.channels.IOPSWrite, activity),
			},
			Throughput: series.Pair{
				Read:  g.draw(g.channels.ThroughputRead, activity),
				Write: g.draw(g.channels.ThroughputWrite, activity),
			},
		}
	}
	return out
}

// HourActivity is the diurnal envelope: peak mid-afternoon, trough pre-dawn.
func HourActivity(hour int) float64 {
	v := 0.3 + 0.7*math.Sin(float64(hour-6)*math.Pi/12)
	return math.Max(0.1, math.Min(1.0, v))
}

func (g *Generator) draw(r ChannelRange, activity float64) float64 {
	return series.Round1(g.uniform(r.Min*activity, r.Max*activity))
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
