package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/clusterwatch/pkg/series"
	"github.com/nicktill/clusterwatch/pkg/storage"
)

// newTestStore connects to CLUSTERWATCH_TEST_REDIS_ADDR under a random key
// prefix, or skips.
func newTestStore(t *testing.T) *Storage {
	t.Helper()
	addr := os.Getenv("CLUSTERWATCH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CLUSTERWATCH_TEST_REDIS_ADDR not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store, err := New(ctx, Config{Addr: addr, Prefix: "cwtest-" + uuid.NewString()})
	require.NoError(t, err)

	t.Cleanup(func() {
		keys, _ := store.client.Keys(context.Background(), store.prefix+":*").Result()
		if len(keys) > 0 {
			store.client.Del(context.Background(), keys...)
		}
		store.Close()
	})
	return store
}

func dataset(entityID string, tr series.TimeRange, n int) storage.Dataset {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s := make(series.Series, n)
	for i := range s {
		s[i] = series.Sample{
			Timestamp: now.Add(time.Duration(i) * time.Minute),
			IOPS:      series.Pair{Read: float64(i), Write: 1},
		}
	}
	return storage.Dataset{EntityID: entityID, TimeRange: tr, Resolution: series.Resolution1m, GeneratedAt: now, Series: s}
}

func TestKeys(t *testing.T) {
	s := &Storage{prefix: "cw"}
	require.Equal(t, "cw:ds:c1:24h", s.datasetKey("c1", series.Range24h))
	require.Equal(t, "cw:entities", s.entitiesKey())

	keys := s.rangeKeys("c1")
	require.Len(t, keys, 6)
	require.Equal(t, "cw:ds:c1:1h", keys[0])
	require.Equal(t, "cw:ds:c1:90d", keys[5])
}

func TestNew_UnreachableServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := New(ctx, Config{Addr: "127.0.0.1:1"})
	require.Error(t, err)
}

func TestRedis_ReplaceLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ReplaceAll(ctx, "c1", []storage.Dataset{
		dataset("c1", series.Range1h, 60),
		dataset("c1", series.Range6h, 72),
	}))

	d, err := store.Load(ctx, "c1", series.Range6h)
	require.NoError(t, err)
	require.Len(t, d.Series, 72)

	require.NoError(t, store.ReplaceAll(ctx, "c1", []storage.Dataset{dataset("c1", series.Range1h, 10)}))
	_, err = store.Load(ctx, "c1", series.Range6h)
	require.ErrorIs(t, err, storage.ErrNotFound)

	d, err = store.Load(ctx, "c1", series.Range1h)
	require.NoError(t, err)
	require.Len(t, d.Series, 10)
}

func TestRedis_EntitiesStatsDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ReplaceAll(ctx, "b", []storage.Dataset{dataset("b", series.Range1h, 5)}))
	require.NoError(t, store.ReplaceAll(ctx, "a", []storage.Dataset{dataset("a", series.Range1h, 7)}))

	ids, err := store.Entities(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(12), stats.Points)

	require.NoError(t, store.Delete(ctx, "a"))
	_, err = store.Load(ctx, "a", series.Range1h)
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.client.Get(ctx, store.datasetKey("a", series.Range1h)).Result()
	require.ErrorIs(t, err, goredis.Nil)
}
