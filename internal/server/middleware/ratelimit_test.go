package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasklist/tasklist/internal/core/throttle"
	"github.com/tasklist/tasklist/internal/metrics"
)

func newThrottledHandler(t *testing.T, limit int, window time.Duration, now *time.Time) (http.Handler, *int) {
	t.Helper()

	limiter := throttle.New(limit, window).WithClock(func() time.Time { return *now })
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return Throttle(limiter)(next), &calls
}

func requestFrom(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/todos", nil)
	req.RemoteAddr = addr
	return req
}

func TestThrottle_AdmitsWithHeaders(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	handler, calls := newThrottledHandler(t, 3, time.Hour, &now)

	for want := 2; want >= 0; want-- {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestFrom("10.0.0.1:5555"))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "3", rec.Header().Get(HeaderRateLimitLimit))
		assert.Equal(t, strconv.Itoa(want), rec.Header().Get(HeaderRateLimitRemaining))
		assert.Equal(t, strconv.FormatInt(now.Unix()+3600, 10), rec.Header().Get(HeaderRateLimitReset))
		assert.Equal(t, "60 minutes", rec.Header().Get(HeaderRateLimitWindow))
		assert.Empty(t, rec.Header().Get(HeaderRetryAfter))
	}
	assert.Equal(t, 3, *calls)
}

func TestThrottle_RejectsOverQuota(t *testing.T) {
	collector := setupTelemetry(t)
	now := time.Unix(1_700_000_000, 0)
	handler, calls := newThrottledHandler(t, 2, 90*time.Second, &now)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestFrom("10.0.0.1:5555"))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("10.0.0.1:6666"))

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 2, *calls, "downstream must not run for a rejected request")
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "90", rec.Header().Get(HeaderRetryAfter))
	assert.Equal(t, "2", rec.Header().Get(HeaderRateLimitLimit))
	assert.Equal(t, "0", rec.Header().Get(HeaderRateLimitRemaining))
	assert.Equal(t, strconv.FormatInt(now.Unix()+90, 10), rec.Header().Get(HeaderRateLimitReset))
	assert.Empty(t, rec.Header().Get(HeaderRateLimitWindow))

	var body RateLimitExceeded
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Rate limit exceeded", body.Error)
	assert.Equal(t, 2, body.Limit)
	assert.Equal(t, 2, body.WaitMinutes)
	assert.NotEmpty(t, body.Message)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Len(t, raw, 4)

	assert.Equal(t, 3, collector.CountMetricsByName(metrics.ThrottleDecisionsTotal))
}

func TestThrottle_ForwardedForIdentifiesClient(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	handler, _ := newThrottledHandler(t, 1, time.Minute, &now)

	first := requestFrom("10.0.0.1:1")
	first.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	// Same proxy, different original client.
	second := requestFrom("10.0.0.1:1")
	second.Header.Set("X-Forwarded-For", "198.51.100.2")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	require.Equal(t, http.StatusOK, rec.Code)

	// Same original client through another proxy hop.
	third := requestFrom("10.0.0.9:1")
	third.Header.Set("X-Forwarded-For", "203.0.113.7")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, third)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestThrottle_WindowRecovery(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	handler, calls := newThrottledHandler(t, 1, time.Minute, &now)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("10.0.0.1:1"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("10.0.0.1:1"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	now = now.Add(61 * time.Second)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("10.0.0.1:1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, *calls)
}

func TestThrottle_NestedChargesOnce(t *testing.T) {
	limiter := throttle.New(2, time.Hour)
	inner := Throttle(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	handler := Throttle(limiter)(inner)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("10.0.0.1:5555"))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "1", rec.Header().Get(HeaderRateLimitRemaining))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("10.0.0.1:5555"))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "0", rec.Header().Get(HeaderRateLimitRemaining))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("10.0.0.1:5555"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestThrottle_NilLimiterPassesThrough(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	Throttle(nil)(next).ServeHTTP(rec, requestFrom("10.0.0.1:1"))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get(HeaderRateLimitLimit))
}

func TestFormatWindowMinutes(t *testing.T) {
	assert.Equal(t, "60 minutes", formatWindowMinutes(3600))
	assert.Equal(t, "1 minutes", formatWindowMinutes(60))
	assert.Equal(t, "1.5 minutes", formatWindowMinutes(90))
	assert.Equal(t, "0.5 minutes", formatWindowMinutes(30))
}
