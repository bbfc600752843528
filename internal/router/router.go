// Package router maps URLs to handlers and attaches the middleware each
// group needs.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/stay-booking-payments/internal/config"
	"github.com/iliyamo/stay-booking-payments/internal/handler"
	"github.com/iliyamo/stay-booking-payments/internal/middleware"
	"github.com/iliyamo/stay-booking-payments/internal/model"
)

// RegisterRoutes registers routes that need no authentication.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterAuth registers /v1/auth and the authenticated profile endpoint.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)

	e.GET("/v1/me", a.Me, middleware.JWTAuth(jwtSecret))
}

// RegisterProperties exposes cached public reads and host-only creation.
func RegisterProperties(e *echo.Echo, p *handler.PropertyHandler, jwtSecret string, cacheCfg config.CacheConfig, rdb *redis.Client) {
	cache := middleware.NewRedisCache(cacheCfg, rdb)
	e.GET("/v1/properties", p.List, cache)
	e.GET("/v1/properties/:id", p.Get, cache)

	e.POST("/v1/properties", p.Create,
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleHost, model.RoleAdmin),
	)
}

// RegisterBookings accepts guests as well as authenticated users.
func RegisterBookings(e *echo.Echo, b *handler.BookingHandler, jwtSecret string) {
	g := e.Group("/v1/bookings", middleware.OptionalJWT(jwtSecret))
	g.POST("", b.Create)
	g.GET("/:id", b.Get)
}

// RegisterPayments registers the payment endpoints behind the Redis token
// bucket.  Verify is also the gateway's server-to-server callback.
func RegisterPayments(e *echo.Echo, p *handler.PaymentHandler, jwtSecret string, rlCfg config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group("/v1/payments",
		middleware.OptionalJWT(jwtSecret),
		middleware.NewTokenBucket(rlCfg, rdb),
	)
	g.POST("/initiate", p.Initiate)
	g.GET("/verify", p.Verify)
	g.GET("/status", p.Status)
}
