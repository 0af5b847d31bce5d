package badger

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nicktill/clusterwatch/pkg/series"
	"github.com/nicktill/clusterwatch/pkg/storage"
)

func dataset(entityID string, tr series.TimeRange, n int, generatedAt time.Time) storage.Dataset {
	s := make(series.Series, n)
	for i := range s {
		s[i] = series.Sample{
			Timestamp:  generatedAt.Add(-time.Duration(n-i) * time.Minute),
			IOPS:       series.Pair{Read: float64(i) + 0.5, Write: 10},
			Throughput: series.Pair{Read: 20, Write: 30.1},
		}
	}
	return storage.Dataset{
		EntityID:    entityID,
		TimeRange:   tr,
		Resolution:  series.Resolution1m,
		Level:       series.LevelRaw,
		GeneratedAt: generatedAt,
		Series:      s,
	}
}

func newTestStore(t *testing.T) *Storage {
	t.Helper()
	store, err := New(Config{InMemory: true, Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBadgerStorage_ReplaceAndLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	err := store.ReplaceAll(ctx, "c1", []storage.Dataset{
		dataset("c1", series.Range1h, 60, now),
		dataset("c1", series.Range90d, 90, now),
	})
	require.NoError(t, err)

	d, err := store.Load(ctx, "c1", series.Range1h)
	require.NoError(t, err)
	require.Equal(t, "c1", d.EntityID)
	require.Len(t, d.Series, 60)
	require.Equal(t, dataset("c1", series.Range1h, 60, now).Series, d.Series)

	_, err = store.Load(ctx, "c1", series.Range6h)
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.Load(ctx, "unknown", series.Range1h)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBadgerStorage_Persistence(t *testing.T) {
	tmpDir := t.TempDir()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	// Write to first instance
	{
		store, err := New(Config{Path: tmpDir})
		require.NoError(t, err)
		require.NoError(t, store.ReplaceAll(ctx, "c1", []storage.Dataset{dataset("c1", series.Range24h, 96, now)}))
		require.NoError(t, store.Close())
	}

	// Read from second instance (reopens same directory)
	{
		store, err := New(Config{Path: tmpDir})
		require.NoError(t, err)
		defer store.Close()

		d, err := store.Load(ctx, "c1", series.Range24h)
		require.NoError(t, err)
		require.Len(t, d.Series, 96)

		ids, err := store.Entities(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"c1"}, ids)
	}
}

func TestBadgerStorage_ReplaceIsWholesale(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.ReplaceAll(ctx, "c1", []storage.Dataset{
		dataset("c1", series.Range1h, 60, now),
		dataset("c1", series.Range7d, 168, now),
	}))
	require.NoError(t, store.ReplaceAll(ctx, "c1", []storage.Dataset{
		dataset("c1", series.Range1h, 10, now.Add(time.Hour)),
	}))

	d, err := store.Load(ctx, "c1", series.Range1h)
	require.NoError(t, err)
	require.Len(t, d.Series, 10)

	_, err = store.Load(ctx, "c1", series.Range7d)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBadgerStorage_InvalidReplaceLeavesPreviousSet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.ReplaceAll(ctx, "c1", []storage.Dataset{dataset("c1", series.Range1h, 60, now)}))

	bad := dataset("c1", series.Range6h, 5, now)
	bad.Series[3].Timestamp = bad.Series[1].Timestamp
	err := store.ReplaceAll(ctx, "c1", []storage.Dataset{dataset("c1", series.Range1h, 5, now), bad})
	require.Error(t, err)

	d, err := store.Load(ctx, "c1", series.Range1h)
	require.NoError(t, err)
	require.Len(t, d.Series, 60)
}

func TestBadgerStorage_DeleteAndStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.ReplaceAll(ctx, "a", []storage.Dataset{
		dataset("a", series.Range1h, 60, now),
		dataset("a", series.Range6h, 72, now),
	}))
	require.NoError(t, store.ReplaceAll(ctx, "b", []storage.Dataset{dataset("b", series.Range1h, 60, now)}))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), stats.Entities)
	require.Equal(t, uint64(3), stats.Datasets)
	require.Equal(t, uint64(192), stats.Points)

	require.NoError(t, store.Delete(ctx, "a"))

	ids, err := store.Entities(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, ids)

	_, err = store.Load(ctx, "a", series.Range1h)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBadgerStorage_CancelledContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.ReplaceAll(ctx, "c1", []storage.Dataset{dataset("c1", series.Range1h, 5, time.Now())})
	require.ErrorIs(t, err, context.Canceled)

	_, err = store.Load(ctx, "c1", series.Range1h)
	require.ErrorIs(t, err, context.Canceled)
}

// lateCancelCtx reports cancellation only after its first allow Err calls,
// simulating a deadline that expires while a write is in progress.
type lateCancelCtx struct {
	context.Context
	allow int32
	calls atomic.Int32
}

func (c *lateCancelCtx) Err() error {
	if c.calls.Add(1) > c.allow {
		return context.Canceled
	}
	return nil
}

func TestBadgerStorage_CancelDuringWriteCommitsNothing(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.ReplaceAll(context.Background(), "c1", []storage.Dataset{
		dataset("c1", series.Range1h, 60, now),
	}))

	ctx := &lateCancelCtx{Context: context.Background(), allow: 1}
	err := store.ReplaceAll(ctx, "c1", []storage.Dataset{
		dataset("c1", series.Range1h, 2000, now.Add(time.Hour)),
	})
	require.ErrorIs(t, err, context.Canceled)

	d, err := store.Load(context.Background(), "c1", series.Range1h)
	require.NoError(t, err)
	require.Len(t, d.Series, 60, "a failed replace must not commit")
	require.True(t, d.GeneratedAt.Equal(now))

	ctx = &lateCancelCtx{Context: context.Background(), allow: 1}
	err = store.ReplaceAll(ctx, "c2", []storage.Dataset{dataset("c2", series.Range1h, 10, now)})
	require.ErrorIs(t, err, context.Canceled)
	ids, err := store.Entities(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"c1"}, ids)
}

func TestBadgerStorage_ReplaceRejectsHashCollision(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	// Store another entity's dataset under c1's hashed key
	other := dataset("other", series.Range1h, 30, now)
	val, err := store.codec.Encode(&other)
	require.NoError(t, err)
	idx, _ := rangeIndex(series.Range1h)
	require.NoError(t, store.db.Update(func(txn *badger.Txn) error {
		return txn.Set(datasetKey("c1", idx), val)
	}))

	err = store.ReplaceAll(ctx, "c1", []storage.Dataset{dataset("c1", series.Range1h, 60, now)})
	require.ErrorIs(t, err, storage.ErrEntityCollision)
	require.ErrorIs(t, store.Delete(ctx, "c1"), storage.ErrEntityCollision)

	// The other entity's data is untouched
	require.NoError(t, store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(datasetKey("c1", idx))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			d, err := store.codec.Decode(v)
			if err != nil {
				return err
			}
			require.Equal(t, "other", d.EntityID)
			require.Len(t, d.Series, 30)
			return nil
		})
	}))
}

func TestRangeIndex(t *testing.T) {
	seen := make(map[byte]bool)
	for _, tr := range series.AllTimeRanges() {
		idx, ok := rangeIndex(tr)
		require.True(t, ok)
		require.False(t, seen[idx])
		seen[idx] = true
	}

	_, ok := rangeIndex("2w")
	require.False(t, ok)
}
