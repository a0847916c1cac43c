package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jalsense/jalsense/server/internal/metrics"
)

// HeaderRequestID carries the per-request correlation id.
const HeaderRequestID = "X-Request-ID"

// requestID stamps every request and response with an X-Request-ID, reusing
// the caller's when present.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(HeaderRequestID, id)
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// accessLog writes one log line per request and records HTTP metrics. m may be nil.
func accessLog(m *metrics.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		route := routeLabel(r.URL.Path)
		if m != nil {
			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		}
		slog.Info("api: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", r.Header.Get(HeaderRequestID),
		)
	})
}

// routeLabel collapses ids out of the path so metric label cardinality stays
// bounded by the route table.
func routeLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/nodes/") && path != "/api/nodes/":
		return "/api/nodes/{id}"
	case strings.HasPrefix(path, "/api/alerts/") && strings.HasSuffix(path, "/ack"):
		return "/api/alerts/{id}/ack"
	case path == "/api/health", path == "/api/nodes", path == "/api/alerts", path == "/api/telemetry":
		return path
	default:
		return "other"
	}
}
