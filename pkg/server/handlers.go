package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicktill/clusterwatch/pkg/httpx"
	"github.com/nicktill/clusterwatch/pkg/server/monitor"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

var startTime = time.Now()

// StorageUsage represents current storage usage stats.
type StorageUsage struct {
	UsedBytes int64 `json:"used_bytes"`
	MaxBytes  int64 `json:"max_bytes"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status       string                     `json:"status"`
	Version      string                     `json:"version"`
	Uptime       string                     `json:"uptime"`
	Backend      string                     `json:"backend"`
	Regeneration monitor.RegenerationStatus `json:"regeneration"`
}

// handleHealth returns service health status.
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := a.RegenMonitor.Status()
	overallStatus := "healthy"
	statusCode := http.StatusOK

	if !status.Healthy {
		overallStatus = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	httpx.RespondJSON(w, statusCode, HealthResponse{
		Status:       overallStatus,
		Version:      Version,
		Uptime:       time.Since(startTime).Round(time.Second).String(),
		Backend:      a.Config.Storage.Backend,
		Regeneration: status,
	})
}

// handleStorageUsage returns current storage usage.
func (a *App) handleStorageUsage(w http.ResponseWriter, r *http.Request) {
	if a.StorageMonitor == nil {
		httpx.RespondErrorString(w, http.StatusNotFound, "storage backend has no local data directory")
		return
	}

	usedBytes, err := a.StorageMonitor.GetUsage()
	if err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, StorageUsage{
		UsedBytes: usedBytes,
		MaxBytes:  a.StorageMonitor.GetLimit(),
	})
}

// Router configures all HTTP routes for the server. CORS wraps the router
// itself since mux does not run middleware for unmatched methods.
func (a *App) Router() http.Handler {
	router := mux.NewRouter()
	router.Use(httpx.RequestLogger(a.Logger.Named("http"), a.requests))
	router.HandleFunc("/metrics", a.handlePrometheusMetrics).Methods("GET")

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/metrics/export", a.exportHandler.HandleExport).Methods("GET")
	a.handler.Register(v1, a.Hub)
	v1.HandleFunc("/health", a.handleHealth).Methods("GET")
	v1.HandleFunc("/storage", a.handleStorageUsage).Methods("GET")

	return corsMiddleware(a.Config.Server.Port)(router)
}

// corsMiddleware creates CORS middleware that restricts to localhost origins only.
func corsMiddleware(port string) func(http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:" + port: true,
		"http://127.0.0.1:" + port: true,
		"http://localhost:3000":    true,
		"http://127.0.0.1:3000":    true,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); allowedOrigins[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
