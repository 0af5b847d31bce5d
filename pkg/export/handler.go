package export

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nicktill/clusterwatch/pkg/httpx"
	"github.com/nicktill/clusterwatch/pkg/metricsvc"
)

// Handler serves the export endpoint
type Handler struct {
	exporter *Exporter
	logger   *zap.Logger
}

// NewHandler creates a new export handler
func NewHandler(svc *metricsvc.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		exporter: NewExporter(svc),
		logger:   logger,
	}
}

// HandleExport handles GET /v1/metrics/export
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	format := query.Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "json" && format != "csv" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "invalid format: must be 'json' or 'csv'")
		return
	}

	opts := ExportOptions{
		EntityID:  query.Get("entityId"),
		TimeRange: query.Get("timeRange"),
		Format:    format,
	}

	// Write into a buffer first so request errors still get a JSON error body
	buf := &bytes.Buffer{}
	var (
		result *ExportResult
		err    error
	)
	if format == "json" {
		result, err = h.exporter.ExportToJSON(r.Context(), buf, opts)
	} else {
		result, err = h.exporter.ExportToCSV(r.Context(), buf, opts)
	}
	if err != nil {
		if status := httpx.RespondServiceError(w, err); status >= http.StatusInternalServerError {
			h.logger.Error("export failed", zap.String("entity_id", opts.EntityID), zap.Error(err))
		}
		return
	}

	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("clusterwatch-%s-%s-%s.%s", opts.EntityID, result.TimeRange, timestamp, format)
	if format == "json" {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/csv")
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)

	h.logger.Info("exported metrics",
		zap.String("entity_id", opts.EntityID),
		zap.String("format", format),
		zap.Int("points", result.PointsExported))
}
