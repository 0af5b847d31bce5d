package api

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/clusterwatch/pkg/generator"
	"github.com/nicktill/clusterwatch/pkg/httpx"
	"github.com/nicktill/clusterwatch/pkg/metricsvc"
	"github.com/nicktill/clusterwatch/pkg/reader"
	"github.com/nicktill/clusterwatch/pkg/series"
	"github.com/nicktill/clusterwatch/pkg/storage"
	"github.com/nicktill/clusterwatch/pkg/storage/memory"
	"github.com/nicktill/clusterwatch/pkg/windowstore"
)

var fixedNow = time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC)

type testAPI struct {
	router *mux.Router
	regen  *windowstore.Regenerator
	repo   storage.Repository
	hub    *Hub
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	repo := memory.New()
	regen := windowstore.New(windowstore.Config{
		Generator:  generator.New(generator.Config{SpanDays: 2}, rand.New(rand.NewPCG(9, 9))),
		Repository: repo,
		Clock:      func() time.Time { return fixedNow },
	})
	rd := reader.New(repo, reader.Options{CacheTTL: time.Minute})
	regen.OnRegenerated(func(res windowstore.Result) { rd.Invalidate(res.EntityID) })

	hub := NewHub(nil)
	regen.OnRegenerated(hub.NotifyRegenerated)

	router := mux.NewRouter()
	NewHandler(metricsvc.New(rd, nil), regen, repo, nil).Register(router.PathPrefix("/v1").Subrouter(), hub)

	return &testAPI{router: router, regen: regen, repo: repo, hub: hub}
}

func (a *testAPI) do(method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httpx.ErrorResponse {
	t.Helper()
	var body httpx.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleMetrics(t *testing.T) {
	a := newTestAPI(t)
	_, err := a.regen.Regenerate(context.Background(), "c1")
	require.NoError(t, err)

	rec := a.do(http.MethodGet, "/v1/metrics?entityId=c1&timeRange=1h")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		EntityID   string          `json:"entityId"`
		TimeRange  string          `json:"timeRange"`
		Resolution string          `json:"resolution"`
		Data       series.Columns  `json:"data"`
		Metadata   series.Metadata `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "c1", body.EntityID)
	require.Equal(t, "1h", body.TimeRange)
	require.Equal(t, "1min", body.Resolution)
	require.NoError(t, body.Data.Validate())
	require.Len(t, body.Data.Timestamps, 60)
	require.Equal(t, 60, body.Metadata.TotalPoints)
	require.Equal(t, fixedNow.Add(-time.Hour).UnixMilli(), body.Data.Timestamps[0])
	require.True(t, body.Metadata.StartTime.Equal(fixedNow.Add(-time.Hour)))
	require.Equal(t, "avg", body.Metadata.AggregationMethod)
}

func TestHandleMetrics_Errors(t *testing.T) {
	a := newTestAPI(t)

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"missing entity", "timeRange=24h", http.StatusBadRequest},
		{"unknown range", "entityId=c1&timeRange=1y", http.StatusBadRequest},
		{"unknown resolution", "entityId=c1&resolution=3min", http.StatusBadRequest},
		{"never generated", "entityId=c1&timeRange=7d", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(http.MethodGet, "/v1/metrics?"+tt.query)
			require.Equal(t, tt.status, rec.Code)
			body := decodeError(t, rec)
			require.Equal(t, http.StatusText(tt.status), body.Error)
			require.NotEmpty(t, body.Message)
		})
	}
}

func TestHandleRegenerate(t *testing.T) {
	a := newTestAPI(t)

	// Prime the read cache with a miss, then regenerate through the API
	require.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/v1/metrics?entityId=edge-7").Code)

	rec := a.do(http.MethodPost, "/v1/entities/edge-7/regenerate")
	require.Equal(t, http.StatusOK, rec.Code)

	var res windowstore.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, "edge-7", res.EntityID)
	require.Len(t, res.Datasets, 6)

	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/v1/metrics?entityId=edge-7").Code)

	rec = a.do(http.MethodGet, "/v1/entities")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"edge-7"`)

	require.Equal(t, http.StatusMethodNotAllowed, a.do(http.MethodGet, "/v1/entities/edge-7/regenerate").Code)
}

func TestHandleStats(t *testing.T) {
	a := newTestAPI(t)
	_, err := a.regen.Regenerate(context.Background(), "c1")
	require.NoError(t, err)

	rec := a.do(http.MethodGet, "/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats storage.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, uint64(1), stats.Entities)
	require.Equal(t, uint64(6), stats.Datasets)
}

func TestWebSocketNotification(t *testing.T) {
	a := newTestAPI(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.hub.Run(ctx)

	srv := httptest.NewServer(a.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, a.hub.HasClients, 2*time.Second, 10*time.Millisecond)

	_, err = a.regen.Regenerate(context.Background(), "c1")
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Notification
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "regenerated", msg.Type)
	require.Equal(t, "c1", msg.Result.EntityID)
}
