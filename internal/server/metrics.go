package server

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/tasklist/tasklist/internal/errors"
	"github.com/tasklist/tasklist/internal/observability"
)

const prometheusContentType = "text/plain; version=0.0.4"

var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// metricsProxy serves /metrics on the API port by fetching the text exposition
// from the Prometheus exporter's own listener.
type metricsProxy struct {
	client *http.Client

	// target returns the exporter URL, or "" when no exporter is running.
	target func() string
}

func newMetricsProxy() *metricsProxy {
	return &metricsProxy{
		client: &http.Client{Timeout: 5 * time.Second},
		target: exporterURL,
	}
}

func exporterURL() string {
	if observability.PrometheusExporter == nil {
		return ""
	}
	port := observability.GetMetricsPort()
	if port == 0 {
		port = 9090
	}
	return fmt.Sprintf("http://127.0.0.1:%d/metrics", port)
}

func (p *metricsProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target := p.target()
	if target == "" {
		envelope := apperrors.NewUnavailableError("Metrics exporter not initialized")
		apperrors.RespondWithError(w, r, envelope)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		apperrors.RespondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "Unable to construct metrics request"))
		return
	}
	if accept := r.Header.Get("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		apperrors.RespondWithError(w, r, apperrors.WrapExternalService(r.Context(), err, "Prometheus exporter unavailable"))
		return
	}
	defer resp.Body.Close() // nolint:errcheck // response already streamed

	copyEndToEndHeaders(w.Header(), resp.Header)
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", prometheusContentType)
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil && observability.ServerLogger != nil {
		observability.ServerLogger.Warn("Failed to write metrics response",
			zap.String("target", target),
			zap.Error(err))
	}
}

func copyEndToEndHeaders(dst, src http.Header) {
	for key, values := range src {
		if _, hop := hopByHopHeaders[http.CanonicalHeaderKey(key)]; hop {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}
