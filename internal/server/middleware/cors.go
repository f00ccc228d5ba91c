package middleware

import (
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/tasklist/tasklist/internal/config"
)

var (
	corsMethods = []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
		http.MethodOptions,
	}

	corsHeaders = []string{"Content-Type", "Authorization", "X-Requested-With", RequestIDHeader}

	// Browsers only expose these to scripts when listed explicitly.
	corsExposed = []string{
		HeaderRateLimitLimit,
		HeaderRateLimitRemaining,
		HeaderRateLimitReset,
		HeaderRateLimitWindow,
		HeaderRetryAfter,
		RequestIDHeader,
	}
)

// CORS answers preflight requests and decorates cross-origin responses with
// the Access-Control-* headers. It sits outside the throttle so preflights
// never consume quota.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	opts := []handlers.CORSOption{
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods(corsMethods),
		handlers.AllowedHeaders(corsHeaders),
		handlers.ExposedHeaders(corsExposed),
	}
	if cfg.MaxAge > 0 {
		opts = append(opts, handlers.MaxAge(cfg.MaxAge))
	}

	return handlers.CORS(opts...)
}
