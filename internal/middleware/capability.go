package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/amirkhv/member-gate/internal/rbac"
)

// RequireCapability enforces that the verified session's role holds
// the given capability. It assumes JWTAuth ran earlier in the chain.
func RequireCapability(capability rbac.Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := GetClaims(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			if err := rbac.Authorize(claims, capability); err != nil {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
