package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// Prefix namespaces the Redis keys
	Prefix string
}

// DefaultRateLimitConfig returns default rate limit settings
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 600,
		WindowDuration:    time.Minute,
		Prefix:            "tenantguard:ratelimit",
	}
}

// RateLimiter is a fixed-window counter shared across instances through
// Redis. It fails open: Redis errors never block a request.
type RateLimiter struct {
	redis  *redis.Client
	config RateLimitConfig
}

// NewRateLimiter creates a new Redis-backed rate limiter
func NewRateLimiter(client *redis.Client, config RateLimitConfig) *RateLimiter {
	defaults := DefaultRateLimitConfig()
	if config.RequestsPerWindow <= 0 {
		config.RequestsPerWindow = defaults.RequestsPerWindow
	}
	if config.WindowDuration <= 0 {
		config.WindowDuration = defaults.WindowDuration
	}
	if config.Prefix == "" {
		config.Prefix = defaults.Prefix
	}
	return &RateLimiter{redis: client, config: config}
}

// Decision is the outcome of one Allow call
type Decision struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

func (rl *RateLimiter) key(subject string) string {
	return fmt.Sprintf("%s:%s", rl.config.Prefix, subject)
}

// Allow counts one request for subject. The returned error is informational;
// the decision already allows the request when Redis fails.
func (rl *RateLimiter) Allow(ctx context.Context, subject string) (Decision, error) {
	key := rl.key(subject)

	pipe := rl.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{Allowed: true, Remaining: rl.config.RequestsPerWindow}, fmt.Errorf("redis error: %w", err)
	}

	resetIn := ttl.Val()
	if resetIn <= 0 {
		// first hit in the window, or a key left without expiry
		if err := rl.redis.PExpire(ctx, key, rl.config.WindowDuration).Err(); err != nil {
			return Decision{Allowed: true, Remaining: rl.config.RequestsPerWindow}, fmt.Errorf("redis error: %w", err)
		}
		resetIn = rl.config.WindowDuration
	}

	count := int(incr.Val())
	remaining := rl.config.RequestsPerWindow - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= rl.config.RequestsPerWindow,
		Remaining: remaining,
		ResetIn:   resetIn,
	}, nil
}

// Reset clears the counter for subject
func (rl *RateLimiter) Reset(ctx context.Context, subject string) error {
	return rl.redis.Del(ctx, rl.key(subject)).Err()
}

// Handler limits authenticated requests per principal and anonymous ones
// per client IP
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		subject := "ip:" + clientIP(r)
		if id, ok := contextkeys.GetPrincipalID(ctx); ok {
			subject = "principal:" + strconv.FormatInt(id, 10)
		}

		decision, err := rl.Allow(ctx, subject)
		if err != nil {
			observability.FromContext(ctx).WithError(err).Warn("rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.RequestsPerWindow))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(decision.ResetIn).Unix(), 10))

		if !decision.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(decision.ResetIn.Round(time.Second).Seconds())))
			httputil.WriteFailure(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
