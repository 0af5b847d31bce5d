package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/nicktill/clusterwatch/pkg/config"
	"github.com/nicktill/clusterwatch/pkg/httpx"
	"github.com/nicktill/clusterwatch/pkg/metricsvc"
	"github.com/nicktill/clusterwatch/pkg/storage"
	"github.com/nicktill/clusterwatch/pkg/windowstore"
)

// Handler serves the metrics API
type Handler struct {
	svc    *metricsvc.Service
	regen  *windowstore.Regenerator
	repo   storage.Repository
	logger *zap.Logger
}

// NewHandler creates a handler
func NewHandler(svc *metricsvc.Service, regen *windowstore.Regenerator, repo storage.Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, regen: regen, repo: repo, logger: logger}
}

// HandleMetrics handles GET /v1/metrics
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.MetricsTimeout)
	defer cancel()

	q := r.URL.Query()
	m, err := h.svc.GetMetrics(ctx, metricsvc.Request{
		EntityID:   q.Get("entityId"),
		TimeRange:  q.Get("timeRange"),
		Resolution: q.Get("resolution"),
	})
	if err != nil {
		h.fail(w, "metrics request failed", err)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, m)
}

// HandleRegenerate handles POST /v1/entities/{entityId}/regenerate
func (h *Handler) HandleRegenerate(w http.ResponseWriter, r *http.Request) {
	entityID := mux.Vars(r)["entityId"]

	ctx, cancel := context.WithTimeout(r.Context(), config.RegenerationTimeout)
	defer cancel()

	res, err := h.regen.Regenerate(ctx, entityID)
	if err != nil {
		h.fail(w, "regeneration failed", err)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, res)
}

// HandleEntities handles GET /v1/entities
func (h *Handler) HandleEntities(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.EntitiesTimeout)
	defer cancel()

	ids, err := h.repo.Entities(ctx)
	if err != nil {
		h.fail(w, "failed to list entities", err)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"entities": ids,
		"count":    len(ids),
	})
}

// HandleStats handles GET /v1/stats
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.StatsTimeout)
	defer cancel()

	stats, err := h.repo.Stats(ctx)
	if err != nil {
		h.fail(w, "failed to read storage stats", err)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, stats)
}

// fail writes the mapped error and logs server-side failures
func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if status := httpx.RespondServiceError(w, err); status >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err))
	}
}

// Register mounts the API routes on r, which is expected to be the /v1 subrouter.
func (h *Handler) Register(r *mux.Router, hub *Hub) {
	r.HandleFunc("/metrics", h.HandleMetrics).Methods("GET")
	r.HandleFunc("/entities", h.HandleEntities).Methods("GET")
	r.HandleFunc("/entities/{entityId}/regenerate", h.HandleRegenerate).Methods("POST")
	r.HandleFunc("/stats", h.HandleStats).Methods("GET")
	if hub != nil {
		r.HandleFunc("/ws", hub.HandleWebSocket).Methods("GET")
	}
}
