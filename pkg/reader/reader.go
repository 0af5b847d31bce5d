// Package reader serves stored window datasets with a bounded number of
// points.
package reader

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/nicktill/clusterwatch/pkg/policy"
	"github.com/nicktill/clusterwatch/pkg/series"
	"github.com/nicktill/clusterwatch/pkg/storage"
)

// Options for a Reader
type Options struct {
	// CacheTTL enables the read-through cache when positive
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// Reader loads datasets from a repository
type Reader struct {
	repo   storage.Repository
	cache  *cache.Cache
	logger *zap.Logger
}

// New creates a reader over repo
func New(repo storage.Repository, opts Options) *Reader {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	r := &Reader{repo: repo, logger: opts.Logger}
	if opts.CacheTTL > 0 {
		r.cache = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return r
}

// Load returns the stored series for (entityID, tr) as persisted.
// A missing dataset is a *series.DataUnavailableError.
func (r *Reader) Load(ctx context.Context, entityID string, tr series.TimeRange) (series.Series, error) {
	key := cacheKey(entityID, tr)
	if r.cache != nil {
		if v, ok := r.cache.Get(key); ok {
			return clone(v.(series.Series)), nil
		}
	}

	d, err := r.repo.Load(ctx, entityID, tr)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &series.DataUnavailableError{EntityID: entityID, TimeRange: tr}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s dataset for %q: %w", tr, entityID, err)
	}

	if r.cache != nil {
		r.cache.SetDefault(key, clone(d.Series))
	}
	return d.Series, nil
}

// Window loads a dataset and decimates it to the range's point budget.
func (r *Reader) Window(ctx context.Context, entityID string, tr series.TimeRange) (series.Series, error) {
	s, err := r.Load(ctx, entityID, tr)
	if err != nil {
		return nil, err
	}
	return Decimate(s, policy.For(tr).TargetPoints), nil
}

// Invalidate drops cached series of one entity
func (r *Reader) Invalidate(entityID string) {
	if r.cache == nil {
		return
	}
	for _, tr := range series.AllTimeRanges() {
		r.cache.Delete(cacheKey(entityID, tr))
	}
	r.logger.Debug("read cache invalidated", zap.String("entity_id", entityID))
}

// Decimate picks at most target samples spread evenly over s, keeping the
// first sample. Output order follows input order and no sample repeats.
// A series already within budget is returned unchanged.
func Decimate(s series.Series, target int) series.Series {
	n := len(s)
	if target <= 0 || n <= target {
		return s
	}

	step := float64(n) / float64(target)
	out := make(series.Series, target)
	for i := 0; i < target; i++ {
		idx := int(math.Floor(float64(i) * step))
		if idx >= n {
			idx = n - 1
		}
		out[i] = s[idx]
	}
	return out
}

func cacheKey(entityID string, tr series.TimeRange) string {
	return string(tr) + "/" + entityID
}

func clone(s series.Series) series.Series {
	out := make(series.Series, len(s))
	copy(out, s)
	return out
}
