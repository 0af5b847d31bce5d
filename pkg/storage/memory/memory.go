package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/nicktill/clusterwatch/pkg/series"
	"github.com/nicktill/clusterwatch/pkg/storage"
)

// Storage keeps datasets in memory. Data is lost on restart.
// Useful for testing and development.
type Storage struct {
	entities map[string]map[series.TimeRange]storage.Dataset
	mu       sync.RWMutex
}

// New creates an in-memory repository
func New() *Storage {
	return &Storage{
		entities: make(map[string]map[series.TimeRange]storage.Dataset),
	}
}

// Load returns a copy of the stored dataset
func (s *Storage) Load(ctx context.Context, entityID string, tr series.TimeRange) (*storage.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.entities[entityID][tr]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneDataset(d), nil
}

// ReplaceAll swaps the entity's dataset map in one step
func (s *Storage) ReplaceAll(ctx context.Context, entityID string, datasets []storage.Dataset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := storage.ValidateReplace(entityID, datasets); err != nil {
		return err
	}

	// Build the new set outside the lock
	next := make(map[series.TimeRange]storage.Dataset, len(datasets))
	for i := range datasets {
		next[datasets[i].TimeRange] = *cloneDataset(datasets[i])
	}

	s.mu.Lock()
	s.entities[entityID] = next
	s.mu.Unlock()
	return nil
}

// Entities lists entity ids in sorted order
func (s *Storage) Entities(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.entities))
	for id := range s.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes every dataset of an entity
func (s *Storage) Delete(ctx context.Context, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entities, entityID)
	return nil
}

// Close is a no-op for memory storage
func (s *Storage) Close() error {
	return nil
}

// Stats returns storage statistics
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &storage.Stats{
		Entities: uint64(len(s.entities)),
	}
	for _, byRange := range s.entities {
		for _, d := range byRange {
			stats.Observe(&d)
		}
	}

	// Rough size estimate (each sample ~40 bytes)
	stats.SizeBytes = stats.Points * 40

	return stats, nil
}

func cloneDataset(d storage.Dataset) *storage.Dataset {
	out := d
	out.Series = make(series.Series, len(d.Series))
	copy(out.Series, d.Series)
	return &out
}
