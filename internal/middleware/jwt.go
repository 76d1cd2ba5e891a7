// Package middleware provides the Echo middleware chain for
// protected routes: access-token verification, capability checks and
// login rate limiting.
package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/amirkhv/member-gate/internal/auth"
)

// claimsKey is the context key the verified claims are stored under.
const claimsKey = "claims"

// JWTAuth verifies a Bearer access token and stores its claims in the
// request context. Every failure mode (missing header, malformed
// token, bad signature, expiry, wrong purpose, wrong deployment)
// yields the same 401 body.
func JWTAuth(issuer *auth.TokenIssuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims, err := issuer.Verify(raw, auth.PurposeAccess)
			if err != nil {
				// Reason stays in the log; the response never narrows it down.
				c.Logger().Debugf("token rejected: %v", err)
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			c.Set(claimsKey, claims)
			return next(c)
		}
	}
}

// RequireFullSession rejects setup-scoped sessions. Routes other than
// change-password mount this after JWTAuth, which is what confines a
// forced-change session to the password change operation.
func RequireFullSession() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := GetClaims(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			if claims.SetupScope {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "password change required"})
			}
			return next(c)
		}
	}
}

// GetClaims fetches the verified claims a JWTAuth middleware stored.
func GetClaims(c echo.Context) (auth.Claims, bool) {
	claims, ok := c.Get(claimsKey).(auth.Claims)
	return claims, ok
}
