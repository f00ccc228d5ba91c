package integration

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasklist/tasklist/internal/config"
	"github.com/tasklist/tasklist/internal/core/store"
	"github.com/tasklist/tasklist/internal/core/throttle"
	"github.com/tasklist/tasklist/internal/observability"
	"github.com/tasklist/tasklist/internal/server"
	"github.com/tasklist/tasklist/internal/server/handlers"
)

// isPermissionError normalizes OS-specific permission errors (macOS/Linux/BSD)
// so we can gracefully skip when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}

	return false
}

// initMetricsOrSkip starts the exporter on a free port and tears the global
// telemetry state down afterwards.
func initMetricsOrSkip(t *testing.T) {
	t.Helper()

	if err := observability.InitMetrics("test", config.MetricsConfig{Enabled: true, Port: 0}, "test"); err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics tests due to sandbox permissions: %v", err)
		}
		require.NoError(t, err)
	}

	t.Cleanup(observability.ShutdownMetrics)
}

type apiFixture struct {
	url    string
	client *http.Client
	store  *store.Store
}

// newAPIServer serves the full router over IPv4 loopback with an in-memory
// sqlite store and the given quota per hour.
func newAPIServer(t *testing.T, limit int) *apiFixture {
	t.Helper()

	ctx := context.Background()
	db, err := store.Open(ctx, config.StoreConfig{Driver: config.DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))
	t.Cleanup(func() { _ = db.Close() })

	health := handlers.NewHealthManager("test")
	health.RegisterChecker("store", db)

	srv := server.New(server.Options{
		Server:   config.ServerConfig{Host: "127.0.0.1"},
		CORS:     config.CORSConfig{AllowedOrigins: []string{"*"}},
		Tasks:    db,
		Throttle: throttle.New(limit, time.Hour),
		Health:   health,
	})

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping server setup: %v", err)
		}
		require.NoError(t, err)
	}

	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: srv.Handler()},
	}
	ts.Start()
	t.Cleanup(ts.Close)

	return &apiFixture{url: ts.URL, client: ts.Client(), store: db}
}

func (f *apiFixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, f.url+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.client.Do(req)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	return resp, data
}

func TestTaskAPI_Integration(t *testing.T) {
	observability.InitServerLogger("test", config.LoggingConfig{Level: "error"})
	f := newAPIServer(t, 100)

	resp, body := f.do(t, http.MethodPost, "/api/todos", `{"title":"  write report  ","description":"quarterly"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Data    struct {
			ID          int64   `json:"id"`
			Title       string  `json:"title"`
			Description *string `json:"description"`
			Done        bool    `json:"is_done"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	assert.True(t, created.Success)
	assert.Equal(t, "Task created", created.Message)
	assert.Equal(t, "write report", created.Data.Title)
	assert.False(t, created.Data.Done)

	resp, body = f.do(t, http.MethodPut, "/api/todos/1", `{"description":null,"is_done":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"description":null`)
	assert.Contains(t, string(body), `"is_done":true`)

	resp, body = f.do(t, http.MethodPut, "/api/todos/1", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))
	assert.Contains(t, string(body), "VALIDATION_FAILED")

	resp, _ = f.do(t, http.MethodGet, "/api/todos/abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodDelete, "/api/todos/1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	count, err := f.store.CountTasks(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestThrottle_ConcurrentClientNeverExceedsQuota(t *testing.T) {
	observability.InitServerLogger("test", config.LoggingConfig{Level: "error"})

	const limit = 10
	const attempts = 40
	f := newAPIServer(t, limit)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		admitted  int
		rejected  int
		retryHint string
	)
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			resp, err := f.client.Get(f.url + "/api/todos")
			if err != nil {
				return
			}
			_ = resp.Body.Close()

			mu.Lock()
			defer mu.Unlock()
			switch resp.StatusCode {
			case http.StatusOK:
				admitted++
			case http.StatusTooManyRequests:
				rejected++
				retryHint = resp.Header.Get("Retry-After")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, admitted)
	assert.Equal(t, attempts-limit, rejected)
	assert.Equal(t, "3600", retryHint)

	// Operational endpoints stay reachable for the throttled client.
	resp, _ := f.do(t, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestThrottle_ForwardedClientsAreCountedSeparately(t *testing.T) {
	observability.InitServerLogger("test", config.LoggingConfig{Level: "error"})
	f := newAPIServer(t, 1)

	for _, forwarded := range []string{"203.0.113.1", "203.0.113.2, 10.0.0.1", "203.0.113.3"} {
		req, err := http.NewRequest(http.MethodGet, f.url+"/api/todos", nil)
		require.NoError(t, err)
		req.Header.Set("X-Forwarded-For", forwarded)
		resp, err := f.client.Do(req)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		assert.Equal(t, http.StatusOK, resp.StatusCode, forwarded)
	}

	req, err := http.NewRequest(http.MethodGet, f.url+"/api/todos", nil)
	require.NoError(t, err)
	req.Header.Set("X-Forwarded-For", "203.0.113.2")
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestMetricsEndpoint_Integration(t *testing.T) {
	observability.InitServerLogger("test", config.LoggingConfig{Level: "error"})
	initMetricsOrSkip(t)

	f := newAPIServer(t, 2)
	for i := 0; i < 3; i++ {
		resp, _ := f.do(t, http.MethodGet, "/api/todos", "")
		require.Contains(t, []int{http.StatusOK, http.StatusTooManyRequests}, resp.StatusCode)
	}

	resp, body := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	metricsContent := string(body)
	assert.Contains(t, metricsContent, "test_http_requests_total", "Should have HTTP request metrics")
	assert.Contains(t, metricsContent, "throttle_decisions_total", "Should have throttle decision metrics")
}

func TestMetricsEndpoint_WithTelemetryDisabled(t *testing.T) {
	observability.InitServerLogger("test", config.LoggingConfig{Level: "error"})

	originalExporter := observability.PrometheusExporter
	originalTelemetry := observability.TelemetrySystem
	observability.PrometheusExporter = nil
	observability.TelemetrySystem = nil
	t.Cleanup(func() {
		observability.PrometheusExporter = originalExporter
		observability.TelemetrySystem = originalTelemetry
	})

	f := newAPIServer(t, 10)

	resp, _ := f.do(t, http.MethodGet, "/api/todos", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
