package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/angelmondragon/toolcrib-backend/api/responses"
	pkgerrors "github.com/angelmondragon/toolcrib-backend/pkg/errors"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/toolcrib-backend/pkg/redis"
)

// RateLimitPolicy bounds how many submissions one caller makes per window.
type RateLimitPolicy struct {
	Name   string
	Limit  int64
	Window time.Duration
}

func (p RateLimitPolicy) enabled() bool {
	return p.Limit > 0 && p.Window > 0
}

func (p RateLimitPolicy) scope(userID string) string {
	name := p.Name
	if name == "" {
		name = "submit"
	}
	return name + ":" + userID
}

// RateLimit applies a fixed-window counter keyed by the authenticated caller.
// It must run after Auth.
func RateLimit(policy RateLimitPolicy, limiter pkgredis.RateLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || limiter == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := UserIDFromContext(ctx)
			if userID == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
				return
			}

			allowed, count, err := limiter.FixedWindowAllow(ctx, policy.scope(userID), policy.Limit, policy.Window)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
				return
			}

			remaining := policy.Limit - count
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(policy.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if !allowed {
				if logg != nil {
					logCtx := logg.WithFields(ctx, map[string]any{
						"policy":         policy.Name,
						"attempts":       count,
						"limit":          policy.Limit,
						"window_seconds": int(policy.Window.Seconds()),
					})
					logg.Warn(logCtx, "rate_limit.blocked")
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(policy.Window.Seconds())))
				responses.WriteError(ctx, nil, w, pkgerrors.Newf(pkgerrors.CodeRateLimit, "at most %d submissions per %s", policy.Limit, policy.Window))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
