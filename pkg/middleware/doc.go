// Package middleware provides HTTP middleware for authentication and rate
// limiting.
//
// AuthMiddleware turns a bearer token into a principal id:
//
//	auth := middleware.NewAuthMiddleware(authenticator, directory, true)
//	router.Use(auth.Handler)
//
// In deferred mode a failed authentication is placed in the context instead
// of answered, so admin actions can audit it with no actor.
//
// RateLimiter counts requests per principal (or per client IP before
// authentication) in Redis and fails open when Redis is unavailable:
//
//	limiter := middleware.NewRateLimiter(redisClient, middleware.DefaultRateLimitConfig())
//	router.Use(limiter.Handler)
package middleware
