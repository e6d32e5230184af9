package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/bus-seat-reservation/internal/handler"
    "github.com/iliyamo/bus-seat-reservation/internal/identity"
    "github.com/iliyamo/bus-seat-reservation/internal/middleware"
)

// RegisterRoutes registers the health check.  db may be nil (memory backend).
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
    e.GET("/healthz", handler.Health(db))
}

// RegisterAuth registers the account endpoints.  Register, login, refresh
// and logout live under /v1/auth and need no session; /v1/me requires a
// valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, resolver identity.Resolver, mw ...echo.MiddlewareFunc) {
    g := e.Group("/v1/auth", mw...)
    g.POST("/register", a.Register)
    g.POST("/login", a.Login)
    g.POST("/refresh", a.Refresh)
    g.POST("/logout", a.Logout)

    e.GET("/v1/me", a.Me, middleware.JWTAuth(resolver))
}

// RegisterPublic registers unauthenticated read endpoints.  cache wraps the
// availability route only.
func RegisterPublic(e *echo.Echo, b *handler.BookingHandler, cache echo.MiddlewareFunc) {
    e.GET("/v1/availability/:bus_id/:date", b.Availability, cache)
}
