package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tasklist/tasklist/internal/core/throttle"
	"github.com/tasklist/tasklist/internal/observability"
)

// responseWriter records the status and body size written by downstream
// handlers. The first status written wins.
type responseWriter struct {
	http.ResponseWriter
	statusCode    int
	bytesWritten  int64
	headerWritten bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.headerWritten {
		return
	}
	rw.headerWritten = true
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.headerWritten = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// requestObservation is one completed request as seen by RequestMetrics.
type requestObservation struct {
	method       string
	endpoint     string
	status       int
	duration     time.Duration
	requestSize  int64
	responseSize int64
}

// getEndpointPattern returns the matched chi route so labels stay bounded.
func getEndpointPattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if routePattern := rctx.RoutePattern(); routePattern != "" {
			return routePattern
		}
	}

	// Requests rejected before routing (throttle, preflight, 404) have no pattern.
	path := r.URL.Path
	switch {
	case path == "/health" || strings.HasPrefix(path, "/health/"):
		return "/health/*"
	case path == "/version", path == "/metrics", path == "/", path == "/api/todos":
		return path
	case strings.HasPrefix(path, "/api/todos/"):
		if strings.HasSuffix(path, "/toggle") {
			return "/api/todos/{id}/toggle"
		}
		return "/api/todos/{id}"
	default:
		return "/unknown"
	}
}

// RequestMetrics emits Prometheus request metrics and a completion log line
// for every request, throttled ones included.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if observability.TelemetrySystem == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		obs := requestObservation{
			method:       r.Method,
			endpoint:     getEndpointPattern(r),
			status:       wrapped.statusCode,
			duration:     time.Since(start),
			requestSize:  max(r.ContentLength, 0),
			responseSize: wrapped.bytesWritten,
		}
		obs.emit()

		if observability.ServerLogger != nil {
			observability.ServerLogger.Info("HTTP request completed",
				zap.String("client", throttle.RequestKey(r)),
				zap.String("method", obs.method),
				zap.String("path", r.URL.Path),
				zap.String("endpoint", obs.endpoint),
				zap.Int("status", obs.status),
				zap.Duration("duration", obs.duration),
				zap.Int64("request_size", obs.requestSize),
				zap.Int64("response_size", obs.responseSize),
				zap.String("request_id", GetRequestID(r.Context())),
			)
		}
	})
}

func (o requestObservation) emit() {
	sys := observability.TelemetrySystem
	if sys == nil {
		return
	}

	status := strconv.Itoa(o.status)
	labels := map[string]string{
		"method":   o.method,
		"endpoint": o.endpoint,
		"status":   status,
	}
	sizeLabels := map[string]string{
		"method":   o.method,
		"endpoint": o.endpoint,
	}

	_ = sys.Counter("http_requests_total", 1, labels)
	_ = sys.Histogram("http_request_duration_ms", o.duration, labels)
	_ = sys.Gauge("http_request_size_bytes", float64(o.requestSize), sizeLabels)
	_ = sys.Gauge("http_response_size_bytes", float64(o.responseSize), sizeLabels)

	if o.status < 400 {
		return
	}
	errorType := "client_error"
	if o.status >= 500 {
		errorType = "server_error"
	}
	_ = sys.Counter("http_errors_total", 1, map[string]string{
		"method":     o.method,
		"endpoint":   o.endpoint,
		"status":     status,
		"error_type": errorType,
	})
}
