package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/nicktill/clusterwatch/pkg/config"
	"github.com/nicktill/clusterwatch/pkg/httpx"
)

// handlePrometheusMetrics exposes process metrics in Prometheus text format
// so the pipeline itself can be scraped.
//
// Format: https://prometheus.io/docs/instrumenting/exposition_formats/
func (a *App) handlePrometheusMetrics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.StatsTimeout)
	defer cancel()

	stats, err := a.Repo.Stats(ctx)
	if err != nil {
		a.Logger.Warn("failed to read storage stats for scrape", zap.Error(err))
		http.Error(w, fmt.Sprintf("stats failed: %v", err), http.StatusInternalServerError)
		return
	}
	regen := a.RegenMonitor.Status()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeGauge(w, "clusterwatch_entities", "Entities with stored datasets", float64(stats.Entities))
	writeGauge(w, "clusterwatch_datasets", "Stored window datasets", float64(stats.Datasets))
	writeGauge(w, "clusterwatch_points", "Points across stored datasets", float64(stats.Points))
	writeGauge(w, "clusterwatch_storage_bytes", "Repository size in bytes", float64(stats.SizeBytes))
	if !stats.NewestGeneration.IsZero() {
		writeGauge(w, "clusterwatch_newest_generation_timestamp_seconds",
			"Generation time of the newest dataset", float64(stats.NewestGeneration.Unix()))
	}
	writeGauge(w, "clusterwatch_regeneration_healthy", "1 when scheduled regeneration is healthy", boolValue(regen.Healthy))
	writeGauge(w, "clusterwatch_regeneration_consecutive_errors",
		"Failed regeneration passes since the last success", float64(regen.ConsecutiveErrors))

	requests := a.requests.Snapshot()
	if len(requests) == 0 {
		return
	}
	fmt.Fprintf(w, "# HELP clusterwatch_http_requests_total Served HTTP requests\n")
	fmt.Fprintf(w, "# TYPE clusterwatch_http_requests_total counter\n")
	for _, rs := range requests {
		fmt.Fprintf(w, "clusterwatch_http_requests_total%s %d\n", formatPrometheusLabels(requestLabels(rs.RequestKey, "")), rs.Count)
	}
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "# HELP clusterwatch_http_request_duration_seconds Served HTTP request latency\n")
	fmt.Fprintf(w, "# TYPE clusterwatch_http_request_duration_seconds summary\n")
	for _, rs := range requests {
		fmt.Fprintf(w, "clusterwatch_http_request_duration_seconds%s %v\n",
			formatPrometheusLabels(requestLabels(rs.RequestKey, "0.5")), rs.P50.Seconds())
		fmt.Fprintf(w, "clusterwatch_http_request_duration_seconds%s %v\n",
			formatPrometheusLabels(requestLabels(rs.RequestKey, "0.99")), rs.P99.Seconds())
		fmt.Fprintf(w, "clusterwatch_http_request_duration_seconds_sum%s %v\n",
			formatPrometheusLabels(requestLabels(rs.RequestKey, "")), rs.DurationSum.Seconds())
		fmt.Fprintf(w, "clusterwatch_http_request_duration_seconds_count%s %d\n",
			formatPrometheusLabels(requestLabels(rs.RequestKey, "")), rs.Count)
	}
}

func requestLabels(k httpx.RequestKey, quantile string) map[string]string {
	labels := map[string]string{
		"method": k.Method,
		"path":   k.Path,
		"status": httpx.StatusLabel(k.Status),
	}
	if quantile != "" {
		labels["quantile"] = quantile
	}
	return labels
}

func writeGauge(w io.Writer, name, help string, value float64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s gauge\n", name)
	fmt.Fprintf(w, "%s %v\n\n", name, value)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// formatPrometheusLabels formats labels as {key="value",key2="value2"} with sorted keys
func formatPrometheusLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf(`%s="%s"`, k, escapePrometheusValue(labels[k])))
	}
	return "{" + strings.Join(pairs, ",") + "}"
}

// escapePrometheusValue escapes backslash, double-quote and line feed
func escapePrometheusValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}
