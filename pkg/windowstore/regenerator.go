// Package windowstore rebuilds the pre-materialized window datasets of an
// entity: generate raw minutes, aggregate to hourly and daily, slice one
// dataset per time range and publish them together.
package windowstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/nicktill/clusterwatch/pkg/compaction"
	"github.com/nicktill/clusterwatch/pkg/generator"
	"github.com/nicktill/clusterwatch/pkg/policy"
	"github.com/nicktill/clusterwatch/pkg/series"
	"github.com/nicktill/clusterwatch/pkg/storage"
)

// ErrRegenerationInProgress is returned when the entity is already being
// regenerated by this process.
var ErrRegenerationInProgress = errors.New("regeneration already in progress")

// DatasetSummary describes one published dataset
type DatasetSummary struct {
	TimeRange  series.TimeRange        `json:"timeRange"`
	Resolution series.Resolution       `json:"resolution"`
	Level      series.AggregationLevel `json:"level"`
	Points     int                     `json:"points"`
}

// Result reports a completed regeneration
type Result struct {
	RunID       string           `json:"runId"`
	EntityID    string           `json:"entityId"`
	GeneratedAt time.Time        `json:"generatedAt"`
	Duration    time.Duration    `json:"durationNs"`
	RawPoints   int              `json:"rawPoints"`
	Datasets    []DatasetSummary `json:"datasets"`
}

// Listener is called after a regeneration has been published.
type Listener func(Result)

// Regenerator is the batch writer for window datasets.
type Regenerator struct {
	gen    *generator.Generator
	agg    *compaction.Aggregator
	repo   storage.Repository
	clock  func() time.Time
	logger *zap.Logger

	mu        sync.Mutex
	inflight  map[string]bool
	listeners []Listener
}

// Config wires a Regenerator. Clock and Logger are optional.
type Config struct {
	Generator  *generator.Generator
	Repository storage.Repository
	Clock      func() time.Time
	Logger     *zap.Logger
}

// New creates a regenerator. The aggregator shares the clock so daily
// stamps and window bounds agree.
func New(cfg Config) *Regenerator {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Generator == nil {
		cfg.Generator = generator.New(generator.Config{}, nil)
	}
	return &Regenerator{
		gen:      cfg.Generator,
		agg:      compaction.New(cfg.Clock),
		repo:     cfg.Repository,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		inflight: make(map[string]bool),
	}
}

// OnRegenerated registers a listener. Listeners run synchronously after
// ReplaceAll succeeds, in registration order.
func (r *Regenerator) OnRegenerated(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Regenerate rebuilds and replaces all window datasets for one entity.
// An aggregation failure aborts before anything is written.
func (r *Regenerator) Regenerate(ctx context.Context, entityID string) (*Result, error) {
	if err := series.ValidateEntityID(entityID); err != nil {
		return nil, err
	}
	if !r.acquire(entityID) {
		return nil, fmt.Errorf("entity %q: %w", entityID, ErrRegenerationInProgress)
	}
	defer r.release(entityID)

	start := time.Now()
	now := r.clock().Truncate(time.Minute)

	raw := r.gen.Generate(now)
	datasets, err := r.build(entityID, raw, now)
	if err != nil {
		return nil, fmt.Errorf("regenerate %q: %w", entityID, err)
	}

	if err := r.repo.ReplaceAll(ctx, entityID, datasets); err != nil {
		return nil, fmt.Errorf("regenerate %q: failed to publish datasets: %w", entityID, err)
	}

	result := Result{
		RunID:       uuid.NewString(),
		EntityID:    entityID,
		GeneratedAt: now,
		Duration:    time.Since(start),
		RawPoints:   len(raw),
	}
	for _, d := range datasets {
		result.Datasets = append(result.Datasets, DatasetSummary{
			TimeRange:  d.TimeRange,
			Resolution: d.Resolution,
			Level:      d.Level,
			Points:     len(d.Series),
		})
	}

	r.logger.Info("regenerated window datasets",
		zap.String("entity_id", entityID),
		zap.String("run_id", result.RunID),
		zap.Int("raw_points", result.RawPoints),
		zap.Duration("duration", result.Duration))

	r.notify(result)
	return &result, nil
}

// build derives hourly and daily series and slices one dataset per range
func (r *Regenerator) build(entityID string, raw series.Series, now time.Time) ([]storage.Dataset, error) {
	hourly, err := r.agg.ToHourly(raw)
	if err != nil {
		return nil, err
	}
	daily, err := r.agg.ToDaily(hourly)
	if err != nil {
		return nil, err
	}

	sources := map[series.AggregationLevel]series.Series{
		series.LevelRaw:    raw,
		series.LevelHourly: hourly.Series(),
		series.LevelDaily:  daily,
	}

	entries := policy.Ranges()
	datasets := make([]storage.Dataset, 0, len(entries))
	for _, e := range entries {
		src := sources[e.Source]
		// 90d keeps the whole daily series
		if e.TimeRange != series.Range90d {
			src = src.Between(now.Add(-e.TimeRange.Duration()), now)
		}
		datasets = append(datasets, storage.Dataset{
			EntityID:    entityID,
			TimeRange:   e.TimeRange,
			Resolution:  e.Resolution,
			Level:       e.Source,
			GeneratedAt: now,
			Series:      src,
		})
	}
	return datasets, nil
}

// RegenerateAll regenerates each entity in turn and returns the results of
// the ones that succeeded plus a combined error for the rest.
func (r *Regenerator) RegenerateAll(ctx context.Context, entityIDs []string) ([]*Result, error) {
	var (
		results []*Result
		errs    error
	)
	for _, id := range entityIDs {
		if err := ctx.Err(); err != nil {
			errs = multierror.Append(errs, err)
			break
		}
		res, err := r.Regenerate(ctx, id)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errs
}

func (r *Regenerator) acquire(entityID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight[entityID] {
		return false
	}
	r.inflight[entityID] = true
	return true
}

func (r *Regenerator) release(entityID string) {
	r.mu.Lock()
	delete(r.inflight, entityID)
	r.mu.Unlock()
}

func (r *Regenerator) notify(result Result) {
	r.mu.Lock()
	listeners := make([]Listener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	for _, l := range listeners {
		l(result)
	}
}
