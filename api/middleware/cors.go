package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/livo-backend/api/responses"
)

// CORS allows browser clients from origins. Blank entries are ignored. With
// no origins left no CORS headers are sent, so browsers refuse cross-origin
// calls.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(origins))
	for _, origin := range origins {
		if origin = strings.TrimRight(strings.TrimSpace(origin), "/"); origin != "" {
			allowed = append(allowed, origin)
		}
	}
	if len(allowed) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type", IdempotencyKeyHeader, responses.RequestIDHeader,
		},
		ExposedHeaders:   []string{responses.RequestIDHeader, ReplayedHeader, RateLimitRemainingHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           600,
	})
}
