package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/livo-backend/api/responses"
	pkgerrors "github.com/angelmondragon/livo-backend/pkg/errors"
	"github.com/angelmondragon/livo-backend/pkg/logger"
)

// RateLimitRemainingHeader tells the client how many calls are left in the
// current window.
const RateLimitRemainingHeader = "X-RateLimit-Remaining"

// RateCounter counts hits in fixed windows.
type RateCounter interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error)
	RateLimitKey(scope string) string
}

// RateLimitPolicy allows Limit requests per client IP every Window.
type RateLimitPolicy struct {
	Limit  int
	Window time.Duration
}

func (p RateLimitPolicy) enabled() bool {
	return p.Limit > 0 && p.Window > 0
}

// RateLimit throttles requests per client IP. When the counter store fails
// the request is let through.
func RateLimit(policy RateLimitPolicy, store RateCounter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := clientIP(r)
			if ip == "" {
				next.ServeHTTP(w, r)
				return
			}

			count, ttl, err := store.IncrWithTTL(ctx, store.RateLimitKey(ip), policy.Window)
			if err != nil {
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "error", err.Error()), "rate limiter unavailable, allowing request")
				}
				next.ServeHTTP(w, r)
				return
			}

			remaining := max(int64(policy.Limit)-count, 0)
			w.Header().Set(RateLimitRemainingHeader, strconv.FormatInt(remaining, 10))
			if count <= int64(policy.Limit) {
				next.ServeHTTP(w, r)
				return
			}

			wait := retryAfter(ttl, policy.Window)
			if logg != nil {
				logCtx := logg.WithFields(ctx, map[string]any{
					"ip":             ip,
					"attempts":       count,
					"limit":          policy.Limit,
					"window_seconds": int(policy.Window.Seconds()),
				})
				logg.Warn(logCtx, "rate limit exceeded")
			}
			w.Header().Set("Retry-After", strconv.Itoa(wait))
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded, retry in "+strconv.Itoa(wait)+"s").
				WithDetails(map[string]any{"retry_after_seconds": wait}))
		})
	}
}

// retryAfter rounds the time left in the window up to whole seconds, at least one.
func retryAfter(ttl, window time.Duration) int {
	if ttl <= 0 {
		ttl = window
	}
	return max(int(math.Ceil(ttl.Seconds())), 1)
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
