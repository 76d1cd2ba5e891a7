// Package router wires HTTP routes to handlers and their middleware.
package router

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/amirkhv/member-gate/internal/auth"
	"github.com/amirkhv/member-gate/internal/handler"
	"github.com/amirkhv/member-gate/internal/limiter"
	"github.com/amirkhv/member-gate/internal/middleware"
	"github.com/amirkhv/member-gate/internal/rbac"
)

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the authentication surface.
//
// Unauthenticated operations live under /v1/auth. Login additionally
// passes through the abuse defense limiter; password setup is keyed by
// possession of a lifecycle token and needs no session.
//
// Protected endpoints live under /v1 behind token verification. The
// change-password route is the only one reachable with a setup-scoped
// session; everything else also requires a full session.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, issuer *auth.TokenIssuer, loginLimiter limiter.AttemptLimiter, log *zap.Logger) {
	g := e.Group("/v1/auth")
	g.POST("/login", a.Login, middleware.LoginRateLimit(loginLimiter, log))
	g.POST("/refresh", a.Refresh)
	g.POST("/password", a.SetupPassword)

	sessioned := e.Group("/v1")
	sessioned.Use(middleware.JWTAuth(issuer))
	sessioned.POST("/auth/change-password", a.ChangePassword)

	full := sessioned.Group("")
	full.Use(middleware.RequireFullSession())
	full.GET("/me", a.Me)
}

// RegisterUsers registers the admin-only account management surface.
func RegisterUsers(e *echo.Echo, u *handler.UserHandler, issuer *auth.TokenIssuer) {
	g := e.Group("/v1/users")
	g.Use(middleware.JWTAuth(issuer))
	g.Use(middleware.RequireFullSession())
	g.Use(middleware.RequireCapability(rbac.CapUserAdmin))

	g.POST("", u.Create)
	g.GET("", u.List)
	g.GET("/:id", u.Get)
	g.PATCH("/:id", u.Update)
	g.DELETE("/:id", u.Deactivate)
	g.POST("/:id/reset", u.InitiateReset)
}
