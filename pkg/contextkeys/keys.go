// Package contextkeys provides centralized context key definitions
//
// All context keys used across the service are defined here so that a key is
// set and read through one typed helper pair.
//
//	ctx = contextkeys.WithPrincipalID(ctx, 42)
//	id, ok := contextkeys.GetPrincipalID(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey contains the request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: logger, audit entries, envelopes
	RequestIDKey Key = "request_id"

	// PrincipalIDKey contains the authenticated principal's int64 id
	// Set by: middleware.AuthMiddleware after SignIn
	// Used by: admin actions, rate limiter
	PrincipalIDKey Key = "principal_id"

	// AuthErrorKey contains the error from a failed authentication
	// Set by: middleware.AuthMiddleware in deferred mode
	// Used by: admin actions, which audit the failure themselves
	AuthErrorKey Key = "auth_error"

	// LoggerKey contains *observability.Logger
	LoggerKey Key = "logger"
)

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithPrincipalID adds the authenticated principal id to the context
func WithPrincipalID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, PrincipalIDKey, id)
}

// GetPrincipalID retrieves the authenticated principal id
func GetPrincipalID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(PrincipalIDKey).(int64)
	return id, ok
}

// WithAuthError records why authentication failed
func WithAuthError(ctx context.Context, err error) context.Context {
	return context.WithValue(ctx, AuthErrorKey, err)
}

// GetAuthError returns the recorded authentication failure, if any
func GetAuthError(ctx context.Context) error {
	if err, ok := ctx.Value(AuthErrorKey).(error); ok {
		return err
	}
	return nil
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}
