// Package router wires handlers and middleware onto echo.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/edusmart-auth/internal/config"
	"github.com/iliyamo/edusmart-auth/internal/handler"
	"github.com/iliyamo/edusmart-auth/internal/middleware"
	"github.com/iliyamo/edusmart-auth/internal/model"
)

// Deps are the pieces RegisterRoutes needs.  Redis may be nil; rate
// limiting and caching are then disabled.
type Deps struct {
	Auth      *handler.AuthHandler
	Checks    []handler.Check
	JWTSecret string
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
}

func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health(d.Checks...))

	// Unauthenticated saga endpoints; the brute-force targets.
	g := e.Group("/v1/auth", middleware.NewTokenBucket(d.RateLimit, d.Redis))
	g.POST("/register", d.Auth.Register)
	g.POST("/verify", d.Auth.Verify)
	g.POST("/login", d.Auth.Login)

	e.GET("/v1/roles", d.Auth.Roles, middleware.NewRedisCache(d.Cache, d.Redis))

	v1 := e.Group("/v1",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(model.RoleAdmin, model.RoleStudent, model.RoleLecturer),
	)
	v1.GET("/me", d.Auth.Me)
}
