package httpx

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	gometrics "github.com/rcrowley/go-metrics"
	"go.uber.org/zap"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

// RequestKey identifies a request series
type RequestKey struct {
	Method string
	Path   string
	Status int
}

// RequestStats is a point-in-time view of one request series
type RequestStats struct {
	RequestKey
	Count       int64
	DurationSum time.Duration
	P50         time.Duration
	P99         time.Duration
}

type requestSeries struct {
	count   gometrics.Counter
	latency gometrics.Timer
}

// RequestMetrics counts served requests and their latency by method, route
// template and status.
type RequestMetrics struct {
	mu     sync.Mutex
	series map[RequestKey]*requestSeries
}

// NewRequestMetrics creates an empty set of request series
func NewRequestMetrics() *RequestMetrics {
	return &RequestMetrics{series: make(map[RequestKey]*requestSeries)}
}

func (m *RequestMetrics) observe(k RequestKey, d time.Duration) {
	m.mu.Lock()
	s, ok := m.series[k]
	if !ok {
		s = &requestSeries{count: gometrics.NewCounter(), latency: gometrics.NewTimer()}
		m.series[k] = s
	}
	m.mu.Unlock()

	s.count.Inc(1)
	s.latency.Update(d)
}

// Snapshot returns every series sorted by path, method, then status
func (m *RequestMetrics) Snapshot() []RequestStats {
	m.mu.Lock()
	out := make([]RequestStats, 0, len(m.series))
	for k, s := range m.series {
		latency := s.latency.Snapshot()
		ps := latency.Percentiles([]float64{0.5, 0.99})
		out = append(out, RequestStats{
			RequestKey:  k,
			Count:       s.count.Count(),
			DurationSum: time.Duration(latency.Sum()),
			P50:         time.Duration(ps[0]),
			P99:         time.Duration(ps[1]),
		})
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Method != b.Method {
			return a.Method < b.Method
		}
		return a.Status < b.Status
	})
	return out
}

// RequestLogger returns mux middleware that tags each request with an id,
// logs it when done and records it in metrics (which may be nil).
// Paths are reported as route templates so entity ids do not explode the
// label space.
func RequestLogger(logger *zap.Logger, metrics *RequestMetrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			path := routeTemplate(r)
			elapsed := time.Since(start)
			if metrics != nil {
				metrics.observe(RequestKey{Method: r.Method, Path: path, Status: rw.statusCode}, elapsed)
			}

			fields := []zap.Field{
				zap.String("request_id", id),
				zap.String("method", r.Method),
				zap.String("path", path),
				zap.Int("status", rw.statusCode),
				zap.Int64("bytes", rw.bytesWritten),
				zap.Duration("duration", elapsed),
			}
			if rw.statusCode >= http.StatusInternalServerError {
				logger.Warn("request failed", fields...)
			} else {
				logger.Debug("request served", fields...)
			}
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// responseWriter captures status code and response size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// Hijack lets websocket upgrades pass through the wrapper
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

// StatusLabel formats a status code for metric labels
func StatusLabel(code int) string {
	return strconv.Itoa(code)
}
