package middleware

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/riskcore/riskcore/internal/platform/resilience"
)

// ActorHeader carries the caller identity set by the upstream gateway.
const ActorHeader = "X-Actor-ID"

// RateLimit returns middleware that applies the shared fixed-window limiter at
// the HTTP edge. Requests are keyed by actor identity when the gateway
// provides one, falling back to the remote IP.
func RateLimit(limiter *resilience.RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get(ActorHeader)
			if key == "" {
				key = c.RealIP()
			}

			allowed, retryAfter := limiter.Allow(key)
			if !allowed {
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"success": false,
					"error": map[string]interface{}{
						"code":        "RATE_LIMIT_EXCEEDED",
						"message":     "rate limit exceeded",
						"retry_after": retryAfter,
					},
				})
			}

			c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(limiter.Remaining(key)))
			return next(c)
		}
	}
}
