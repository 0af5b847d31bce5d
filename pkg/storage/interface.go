package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nicktill/clusterwatch/pkg/series"
)

// ErrNotFound is returned by Load when no dataset exists for (entity, range).
var ErrNotFound = errors.New("dataset not found")

// ErrEntityCollision is returned by writers when another entity already owns
// the storage location the entity id hashes to.
var ErrEntityCollision = errors.New("entity storage key collision")

// Dataset is a pre-materialized series for one (entity, time range) pair.
type Dataset struct {
	EntityID    string
	TimeRange   series.TimeRange
	Resolution  series.Resolution
	Level       series.AggregationLevel
	GeneratedAt time.Time
	Series      series.Series
}

// Repository stores window datasets.
// Implementations: memory (testing), badger (default), filestore (compressed files), redis (shared)
//
// Readers only call Load. ReplaceAll is the single writer path and must
// publish atomically: a concurrent Load sees either the previous set of
// datasets for the entity or the new one, never a mix.
type Repository interface {
	// Load returns the dataset for (entityID, tr) or ErrNotFound
	Load(ctx context.Context, entityID string, tr series.TimeRange) (*Dataset, error)

	// ReplaceAll swaps every dataset of an entity for the given set
	ReplaceAll(ctx context.Context, entityID string, datasets []Dataset) error

	// Entities lists entity ids that have datasets
	Entities(ctx context.Context) ([]string, error)

	// Delete removes all datasets of an entity
	Delete(ctx context.Context, entityID string) error

	// Stats returns storage statistics
	Stats(ctx context.Context) (*Stats, error)

	// Close cleanly shuts down the repository
	Close() error
}

// Stats provides repository health and usage info
type Stats struct {
	// Entities with at least one dataset
	Entities uint64 `json:"entities"`

	// Datasets stored across all entities
	Datasets uint64 `json:"datasets"`

	// Points summed across all datasets
	Points uint64 `json:"points"`

	// Storage size in bytes (estimate for memory)
	SizeBytes uint64 `json:"size_bytes"`

	// Oldest and newest regeneration time seen
	OldestGeneration time.Time `json:"oldest_generation"`
	NewestGeneration time.Time `json:"newest_generation"`
}

// Observe folds one dataset into the stats.
func (s *Stats) Observe(d *Dataset) {
	s.Datasets++
	s.Points += uint64(len(d.Series))
	if s.OldestGeneration.IsZero() || d.GeneratedAt.Before(s.OldestGeneration) {
		s.OldestGeneration = d.GeneratedAt
	}
	if d.GeneratedAt.After(s.NewestGeneration) {
		s.NewestGeneration = d.GeneratedAt
	}
}

// ValidateReplace checks a ReplaceAll request before any backend touches storage.
func ValidateReplace(entityID string, datasets []Dataset) error {
	if entityID == "" {
		return errors.New("entity id is required")
	}
	if len(datasets) == 0 {
		return fmt.Errorf("no datasets for entity %q", entityID)
	}

	seen := make(map[series.TimeRange]bool, len(datasets))
	for _, d := range datasets {
		if d.EntityID != entityID {
			return fmt.Errorf("dataset for entity %q in replace request for %q", d.EntityID, entityID)
		}
		if !d.TimeRange.Valid() {
			return fmt.Errorf("dataset has unknown time range %q", d.TimeRange)
		}
		if seen[d.TimeRange] {
			return fmt.Errorf("duplicate %s dataset for entity %q", d.TimeRange, entityID)
		}
		seen[d.TimeRange] = true
		if i := d.Series.CheckChronological(); i >= 0 {
			return fmt.Errorf("%s dataset for entity %q is not chronological at index %d", d.TimeRange, entityID, i)
		}
	}
	return nil
}
