// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/drawdeck/boardsync/internal/identity"
	"github.com/google/uuid"
)

const healthzPath = "/healthz"
const metricsPath = "/metrics"
const versionPath = "/version"
const headerUserID = "X-User-Id"
const headerRateLimitLimit = "X-RateLimit-Limit"
const headerRateLimitRemaining = "X-RateLimit-Remaining"
const headerRetryAfter = "Retry-After"

// UserIdentity requires a valid X-User-Id header on all routes except
// /healthz, /metrics, and /version, stores the user id on the request
// context, and applies a per-user rate limit.
func UserIdentity(limitPerMinute int, logger *slog.Logger) func(http.Handler) http.Handler {
	return userIdentityWithLimiter(limitPerMinute, newInMemoryRateLimiter(), logger)
}

func userIdentityWithLimiter(
	limitPerMinute int,
	limiter *inMemoryRateLimiter,
	logger *slog.Logger,
) func(http.Handler) http.Handler {
	if limiter == nil {
		panic("middleware.UserIdentity requires a limiter")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == healthzPath || r.URL.Path == metricsPath || r.URL.Path == versionPath {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := uuid.Parse(r.Header.Get(headerUserID))
			if err != nil || userID == uuid.Nil {
				logger.Warn("request blocked by identity middleware",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				http.Error(w, "missing or invalid X-User-Id header", http.StatusUnauthorized)
				return
			}

			decision := limiter.Allow(userID, limitPerMinute, time.Now())
			w.Header().Set(headerRateLimitLimit, strconv.Itoa(decision.LimitPerMinute))
			w.Header().Set(headerRateLimitRemaining, strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				w.Header().Set(headerRetryAfter, strconv.Itoa(decision.RetryAfterSeconds))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			// Preserve the identity on the current request pointer so outer
			// middleware (request logging) can read user_id after next returns.
			*r = *r.WithContext(identity.WithUserID(r.Context(), userID))
			next.ServeHTTP(w, r)
		})
	}
}
