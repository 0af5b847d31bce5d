package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nicktill/clusterwatch/pkg/config"
	"github.com/nicktill/clusterwatch/pkg/storage"
	"github.com/nicktill/clusterwatch/pkg/storage/memory"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Storage.Backend = config.BackendMemory
	cfg.Generator.SpanDays = 1
	cfg.Regeneration.Entities = []string{"c1", "c2"}
	cfg.Regeneration.RetryDelay = time.Millisecond
	return cfg
}

// flakyRepo fails the first n ReplaceAll calls
type flakyRepo struct {
	*memory.Storage
	failures atomic.Int32
}

func (f *flakyRepo) ReplaceAll(ctx context.Context, entityID string, datasets []storage.Dataset) error {
	if f.failures.Add(-1) >= 0 {
		return errors.New("transient write failure")
	}
	return f.Storage.ReplaceAll(ctx, entityID, datasets)
}

func TestOpenRepository(t *testing.T) {
	ctx := context.Background()

	repo, err := OpenRepository(ctx, config.StorageConfig{Backend: config.BackendMemory}, zapNop())
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo, err = OpenRepository(ctx, config.StorageConfig{Backend: config.BackendFile, DataDir: t.TempDir()}, zapNop())
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo, err = OpenRepository(ctx, config.StorageConfig{Backend: config.BackendBadger, DataDir: t.TempDir()}, zapNop())
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	_, err = OpenRepository(ctx, config.StorageConfig{Backend: "cassandra"}, zapNop())
	require.Error(t, err)
}

func TestRegenerateWithRetry(t *testing.T) {
	repo := &flakyRepo{Storage: memory.New()}
	repo.failures.Store(1)
	app := NewAppWithRepository(testConfig(), repo, nil)

	require.NoError(t, app.regenerateWithRetry(context.Background()))

	status := app.RegenMonitor.Status()
	require.True(t, status.Healthy)
	require.Equal(t, 2, status.Entities)

	ids, err := repo.Entities(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"c1", "c2"}, ids)
}

func TestRegenerateWithRetry_GivesUp(t *testing.T) {
	repo := &flakyRepo{Storage: memory.New()}
	repo.failures.Store(100)
	cfg := testConfig()
	cfg.Regeneration.MaxRetries = 2
	app := NewAppWithRepository(cfg, repo, nil)

	err := app.regenerateWithRetry(context.Background())
	require.ErrorContains(t, err, "transient write failure")
	require.Equal(t, 3, app.RegenMonitor.Status().ConsecutiveErrors)
	require.False(t, app.RegenMonitor.IsHealthy())
}

func TestRegenerateWithRetry_DiscoversStoredEntities(t *testing.T) {
	cfg := testConfig()
	cfg.Regeneration.Entities = nil
	app := NewAppWithRepository(cfg, memory.New(), nil)

	err := app.regenerateWithRetry(context.Background())
	require.ErrorIs(t, err, errNoEntities)

	_, err = app.Regenerator.Regenerate(context.Background(), "found")
	require.NoError(t, err)
	require.NoError(t, app.regenerateWithRetry(context.Background()))
	require.Equal(t, 1, app.RegenMonitor.Status().Entities)
}

func TestRouter(t *testing.T) {
	app := NewAppWithRepository(testConfig(), memory.New(), nil)
	router := app.Router()

	get := func(target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		return rec
	}

	// Scheduled but never succeeded
	rec := get("/v1/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, app.regenerateWithRetry(context.Background()))

	rec = get("/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	require.Equal(t, "healthy", health.Status)
	require.Equal(t, config.BackendMemory, health.Backend)

	require.Equal(t, http.StatusOK, get("/v1/metrics?entityId=c1&timeRange=6h").Code)
	require.Equal(t, http.StatusOK, get("/v1/metrics/export?entityId=c2&timeRange=1h").Code)
	require.Equal(t, http.StatusNotFound, get("/v1/storage").Code)
}

func TestHealth_RecoversAfterOnDemandRegeneration(t *testing.T) {
	cfg := testConfig()
	cfg.Regeneration.Entities = nil
	app := NewAppWithRepository(cfg, memory.New(), nil)
	router := app.Router()

	require.ErrorIs(t, app.regenerateWithRetry(context.Background()), errNoEntities)

	serve := func(method, target string) int {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
		return rec.Code
	}
	require.Equal(t, http.StatusServiceUnavailable, serve(http.MethodGet, "/v1/health"))

	require.Equal(t, http.StatusOK, serve(http.MethodPost, "/v1/entities/c9/regenerate"))
	require.Equal(t, http.StatusOK, serve(http.MethodGet, "/v1/health"))
}

func TestCORS(t *testing.T) {
	app := NewAppWithRepository(testConfig(), memory.New(), nil)
	router := app.Router()

	req := httptest.NewRequest(http.MethodOptions, "/v1/metrics", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func zapNop() *zap.Logger { return zap.NewNop() }
