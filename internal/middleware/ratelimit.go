package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/amirkhv/member-gate/internal/limiter"
)

// LoginRateLimit wraps the login endpoint with a per-source attempt
// ceiling. The rejection is uniform regardless of whether the
// credentials would have succeeded, and carries a Retry-After hint.
// Limiter backend errors fail open: an unreachable Redis must not
// take logins down with it.
func LoginRateLimit(l limiter.AttemptLimiter, log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if ip == "" {
				ip = "unknown"
			}

			allowed, retryAfter, err := l.Allow(c.Request().Context(), ip)
			if err != nil {
				log.Warn("rate limiter unavailable", zap.Error(err))
				return next(c)
			}
			if !allowed {
				secs := int(math.Ceil(retryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too many attempts",
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}
