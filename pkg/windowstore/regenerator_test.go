package windowstore

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/clusterwatch/pkg/generator"
	"github.com/nicktill/clusterwatch/pkg/policy"
	"github.com/nicktill/clusterwatch/pkg/series"
	"github.com/nicktill/clusterwatch/pkg/storage"
	"github.com/nicktill/clusterwatch/pkg/storage/memory"
)

// Wednesday afternoon; seconds are dropped by the regenerator
var testNow = time.Date(2024, 6, 5, 14, 37, 20, 0, time.UTC)

func newTestRegenerator(repo storage.Repository, spanDays int) *Regenerator {
	return New(Config{
		Generator:  generator.New(generator.Config{SpanDays: spanDays}, rand.New(rand.NewPCG(7, 11))),
		Repository: repo,
		Clock:      func() time.Time { return testNow },
	})
}

// blockingRepo parks ReplaceAll until released
type blockingRepo struct {
	*memory.Storage
	entered chan struct{}
	release chan struct{}
}

func (b *blockingRepo) ReplaceAll(ctx context.Context, entityID string, datasets []storage.Dataset) error {
	close(b.entered)
	<-b.release
	return b.Storage.ReplaceAll(ctx, entityID, datasets)
}

type failingRepo struct {
	*memory.Storage
}

func (failingRepo) ReplaceAll(context.Context, string, []storage.Dataset) error {
	return errors.New("disk full")
}

func TestRegenerate_AllWindows(t *testing.T) {
	repo := memory.New()
	r := newTestRegenerator(repo, 90)
	ctx := context.Background()

	res, err := r.Regenerate(ctx, "cluster-1")
	require.NoError(t, err)
	require.Equal(t, "cluster-1", res.EntityID)
	require.NotEmpty(t, res.RunID)
	require.Equal(t, 90*1440, res.RawPoints)
	require.Len(t, res.Datasets, 6)

	now := testNow.Truncate(time.Minute)
	wantPoints := map[series.TimeRange]int{
		series.Range1h:  60,
		series.Range6h:  360,
		series.Range24h: 1440,
		series.Range7d:  168,
		series.Range30d: 720,
		series.Range90d: 91,
	}

	for _, e := range policy.Ranges() {
		d, err := repo.Load(ctx, "cluster-1", e.TimeRange)
		require.NoError(t, err, e.TimeRange)
		require.Equal(t, e.Resolution, d.Resolution)
		require.Equal(t, e.Source, d.Level)
		require.Equal(t, now, d.GeneratedAt)
		require.Len(t, d.Series, wantPoints[e.TimeRange], e.TimeRange)
		require.Equal(t, -1, d.Series.CheckChronological())

		if e.TimeRange != series.Range90d {
			require.False(t, d.Series.First().Before(now.Add(-e.TimeRange.Duration())), e.TimeRange)
			require.False(t, d.Series.Last().After(now), e.TimeRange)
		}
	}
}

func TestRegenerate_OneHourWindow(t *testing.T) {
	repo := memory.New()
	r := newTestRegenerator(repo, 2)

	_, err := r.Regenerate(context.Background(), "c1")
	require.NoError(t, err)

	d, err := repo.Load(context.Background(), "c1", series.Range1h)
	require.NoError(t, err)

	now := testNow.Truncate(time.Minute)
	require.Len(t, d.Series, 60)
	require.Equal(t, now.Add(-time.Hour), d.Series.First())
	require.Equal(t, now.Add(-time.Minute), d.Series.Last())
}

func TestRegenerate_DailyStampedWithClockTime(t *testing.T) {
	repo := memory.New()
	r := newTestRegenerator(repo, 5)

	_, err := r.Regenerate(context.Background(), "c1")
	require.NoError(t, err)

	d, err := repo.Load(context.Background(), "c1", series.Range90d)
	require.NoError(t, err)
	require.Len(t, d.Series, 6)
	for _, s := range d.Series {
		require.Equal(t, 14, s.Timestamp.Hour())
		require.Equal(t, 37, s.Timestamp.Minute())
	}
}

func TestRegenerate_AggregationErrorAbortsBeforeWrite(t *testing.T) {
	r := newTestRegenerator(memory.New(), 1)
	now := testNow.Truncate(time.Minute)

	raw := series.Series{
		{Timestamp: now.Add(-time.Minute)},
		{Timestamp: now.Add(-2 * time.Minute)},
	}
	_, err := r.build("c1", raw, now)
	require.True(t, series.IsAggregationInvariant(err))

	_, err = r.build("c1", nil, now)
	require.True(t, series.IsAggregationInvariant(err))
}

func TestRegenerate_ReplaceFailureSkipsListeners(t *testing.T) {
	r := newTestRegenerator(failingRepo{memory.New()}, 1)
	called := false
	r.OnRegenerated(func(Result) { called = true })

	_, err := r.Regenerate(context.Background(), "c1")
	require.ErrorContains(t, err, "disk full")
	require.False(t, called)
}

func TestRegenerate_EmptyEntity(t *testing.T) {
	r := newTestRegenerator(memory.New(), 1)
	_, err := r.Regenerate(context.Background(), "")
	require.True(t, series.IsValidation(err))
}

func TestRegenerate_RejectsConcurrentSameEntity(t *testing.T) {
	repo := &blockingRepo{
		Storage: memory.New(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	r := newTestRegenerator(repo, 1)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := r.Regenerate(ctx, "c1")
		done <- err
	}()
	<-repo.entered

	_, err := r.Regenerate(ctx, "c1")
	require.ErrorIs(t, err, ErrRegenerationInProgress)

	close(repo.release)
	require.NoError(t, <-done)

	// Slot is released afterwards
	repo.entered = make(chan struct{})
	_, err = r.Regenerate(ctx, "c1")
	require.NoError(t, err)
}

func TestRegenerate_NotifiesListeners(t *testing.T) {
	r := newTestRegenerator(memory.New(), 1)

	var order []string
	r.OnRegenerated(func(res Result) { order = append(order, "first:"+res.EntityID) })
	r.OnRegenerated(func(res Result) { order = append(order, "second:"+res.EntityID) })

	_, err := r.Regenerate(context.Background(), "c9")
	require.NoError(t, err)
	require.Equal(t, []string{"first:c9", "second:c9"}, order)
}

func TestRegenerateAll(t *testing.T) {
	repo := memory.New()
	r := newTestRegenerator(repo, 1)

	results, err := r.RegenerateAll(context.Background(), []string{"a", "", "b"})
	require.Len(t, results, 2)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	require.Len(t, merr.Errors, 1)
	require.True(t, series.IsValidation(merr.Errors[0]))

	ids, err := repo.Entities(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids)
}
