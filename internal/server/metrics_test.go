package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsProxyForwardsExporterOutput(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "text/plain" {
			t.Errorf("expected Accept to be forwarded, got %q", got)
		}
		w.Header().Set("Content-Type", prometheusContentType)
		w.Header().Set("Keep-Alive", "timeout=5")
		_, _ = w.Write([]byte("# HELP tasklist_throttle_decisions_total Throttle decisions\ntasklist_throttle_decisions_total{decision=\"rejected\"} 3\n"))
	}))
	t.Cleanup(upstream.Close)

	proxy := &metricsProxy{client: upstream.Client(), target: func() string { return upstream.URL + "/metrics" }}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept", "text/plain")
	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Fatalf("expected text/plain content type, got %s", ct)
	}
	if !strings.Contains(rec.Body.String(), `decision="rejected"`) {
		t.Fatalf("expected exporter body to be proxied, got: %s", rec.Body.String())
	}
	if rec.Header().Get("Keep-Alive") != "" {
		t.Fatal("expected hop-by-hop headers to be dropped")
	}
}

func TestMetricsProxyWithoutExporter(t *testing.T) {
	proxy := &metricsProxy{client: http.DefaultClient, target: func() string { return "" }}

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
	assertErrorCode(t, rec, "SERVICE_UNAVAILABLE")
}

func TestMetricsProxyExporterDown(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	target := upstream.URL + "/metrics"
	upstream.Close()

	proxy := &metricsProxy{client: &http.Client{Timeout: time.Second}, target: func() string { return target }}

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rec.Code)
	}
	assertErrorCode(t, rec, "EXTERNAL_SERVICE_ERROR")
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error.Code != want {
		t.Fatalf("expected error code %s, got %s", want, resp.Error.Code)
	}
}
