package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/openshelf/library-api/internal/handler"    // import the handlers that implement business logic
	"github.com/openshelf/library-api/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Map the GET request at path "/healthz" to the Health handler.  This
	// endpoint can be used by load balancers or monitoring systems to verify
	// that the service is up and running.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication‑related routes and applies the
// necessary middleware.  Unauthenticated operations live under /v1/auth,
// while protected endpoints live under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	// Create a route group under the /v1/auth prefix for operations that do
	// not require an existing session (register, login, refresh).  Each of
	// these handlers is responsible for generating or exchanging tokens.
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Refresh rotates the refresh token; refresh-access only issues a new
	// short-lived access token.
	g.POST("/refresh", a.Refresh)
	g.POST("/refresh-access", a.RefreshAccess)
	// Logout accepts a refresh token in the body or a bearer access token
	// in the header; it does not require the JWT middleware.
	g.POST("/logout", a.Logout)

	// Protected group: any authenticated role may ask who they are.
	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole("ADMIN", "MEMBER"))
	auth.GET("/me", a.Me)

	// Top-level alias so clients can call either /v1/auth/logout or
	// /v1/logout with a valid refresh token in the body.
	e.POST("/v1/logout", a.Logout)
}

// RegisterPublic registers the unauthenticated catalogue endpoints.
// Guests can browse books and check availability before signing up.
// Route-level middleware (typically the Redis response cache) is
// applied to these reads only.
func RegisterPublic(e *echo.Echo, b *handler.BookHandler, mw ...echo.MiddlewareFunc) {
	e.GET("/v1/books", b.List, mw...)
	e.GET("/v1/books/:id", b.Get, mw...)
	// Availability returns the stored counter alongside the figure
	// computed from open loans, so it is served uncached.
	e.GET("/v1/books/:id/availability", b.Availability)
}
