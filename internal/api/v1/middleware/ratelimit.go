package middleware

import (
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/deepgram/forecaster/internal/config"
	"github.com/deepgram/forecaster/pkg/httpext"
	"github.com/deepgram/forecaster/pkg/logger"
	"github.com/deepgram/forecaster/pkg/ratelimit"
)

// RateLimit limits requests per client IP under limitKey. With a Redis client
// the window is shared by every replica, otherwise it is kept in memory.
func RateLimit(limitKey string, cache redis.Cmdable) func(http.Handler) http.Handler {
	cfg := config.GetRateLimitConfig(limitKey)

	var limiter ratelimit.Limiter
	if cache != nil {
		limiter = ratelimit.NewRedisLimiter(cache, "ratelimit:"+limitKey, cfg.Window, cfg.MaxHits)
	} else {
		limiter = ratelimit.NewMemoryLimiter(cfg.Window, cfg.MaxHits)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			// Use X-Forwarded-For if behind proxy, otherwise remote address
			ip := r.Header.Get("X-Forwarded-For")
			if ip == "" {
				ip = r.RemoteAddr
			}

			allowed, err := limiter.Allow(r.Context(), ip)
			if err != nil {
				logger.Error(logger.MIDDLEWARE, "Rate limiter unavailable, allowing request: %v", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				logger.Warn(logger.MIDDLEWARE, "Rate limit exceeded for %s on %s", ip, limitKey)
				httpext.JsonError(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
