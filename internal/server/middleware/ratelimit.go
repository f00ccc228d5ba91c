package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/tasklist/tasklist/internal/core/throttle"
	"github.com/tasklist/tasklist/internal/metrics"
	"github.com/tasklist/tasklist/internal/observability"
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRateLimitWindow    = "X-RateLimit-Window"
	HeaderRetryAfter         = "Retry-After"
)

// RateLimitExceeded is the JSON body of a 429 response.
type RateLimitExceeded struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	Limit       int    `json:"limit"`
	WaitMinutes int    `json:"wait_minutes"`
}

// evaluatedKey marks a request that already spent quota, so nested throttled
// handlers (a mounted router's NotFound, say) do not charge it twice.
type evaluatedKey struct{}

// Throttle admits or rejects each request against the per-client quota held
// by limiter. Admitted requests carry the quota headers; rejected ones get a
// 429 and never reach next. A nil limiter disables throttling.
func Throttle(limiter *throttle.RequestThrottle) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}

		window := limiter.WindowSeconds()
		windowLabel := formatWindowMinutes(window)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Context().Value(evaluatedKey{}) != nil {
				next.ServeHTTP(w, r)
				return
			}

			key := throttle.RequestKey(r)
			decision := limiter.Allow(key)
			metrics.RecordThrottleDecision(decision.Admitted)

			h := w.Header()
			h.Set(HeaderRateLimitLimit, strconv.Itoa(decision.Limit))
			h.Set(HeaderRateLimitRemaining, strconv.Itoa(decision.Remaining))
			h.Set(HeaderRateLimitReset, strconv.FormatInt(decision.ResetAt, 10))

			if decision.Admitted {
				h.Set(HeaderRateLimitWindow, windowLabel)
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), evaluatedKey{}, true)))
				return
			}

			if observability.ServerLogger != nil {
				observability.ServerLogger.Warn("Rate limit exceeded",
					zap.String("client", key),
					zap.Int("limit", decision.Limit),
					zap.Int("window_seconds", window),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("request_id", GetRequestID(r.Context())),
				)
			}

			writeRateLimitExceeded(w, decision, window)
		})
	}
}

func writeRateLimitExceeded(w http.ResponseWriter, decision throttle.Decision, windowSeconds int) {
	waitMinutes := (windowSeconds + 59) / 60
	body := RateLimitExceeded{
		Error:       "Rate limit exceeded",
		Message:     fmt.Sprintf("Too many requests. Limit: %d requests every %d minutes.", decision.Limit, waitMinutes),
		Limit:       decision.Limit,
		WaitMinutes: waitMinutes,
	}

	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set(HeaderRetryAfter, strconv.Itoa(decision.RetryAfter))
	h.Set(HeaderRateLimitRemaining, "0")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(body)
}

// formatWindowMinutes renders the window as "<n> minutes", keeping a
// fractional part only when the window is not a whole number of minutes.
func formatWindowMinutes(windowSeconds int) string {
	if windowSeconds%60 == 0 {
		return strconv.Itoa(windowSeconds/60) + " minutes"
	}
	return strconv.FormatFloat(float64(windowSeconds)/60, 'f', -1, 64) + " minutes"
}
