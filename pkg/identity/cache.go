package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// CacheConfig sizes the verification cache
type CacheConfig struct {
	Size int
	TTL  time.Duration
}

// DefaultCacheConfig returns a small cache with a short TTL
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{Size: 1024, TTL: time.Minute}
}

// CachingAuthenticator memoizes successful verifications by token hash.
// Only identity claims are cached; membership and roles are always read
// fresh by the caller. Concurrent verifications of one token share a call.
type CachingAuthenticator struct {
	next  Authenticator
	cache *lru.LRU[string, *Identity]
	group singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachingAuthenticator wraps an authenticator with a TTL cache
func NewCachingAuthenticator(next Authenticator, config CacheConfig) *CachingAuthenticator {
	if config.Size <= 0 {
		config.Size = DefaultCacheConfig().Size
	}
	if config.TTL <= 0 {
		config.TTL = DefaultCacheConfig().TTL
	}
	return &CachingAuthenticator{
		next:  next,
		cache: lru.NewLRU[string, *Identity](config.Size, nil, config.TTL),
	}
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Authenticate implements Authenticator
func (c *CachingAuthenticator) Authenticate(ctx context.Context, token string) (*Identity, error) {
	key := tokenKey(token)
	if id, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		copied := *id
		return &copied, nil
	}
	c.misses.Add(1)

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		id, err := c.next.Authenticate(ctx, token)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, id)
		return id, nil
	})
	if err != nil {
		return nil, err
	}
	copied := *v.(*Identity)
	return &copied, nil
}

// Stats reports cache hits and misses
func (c *CachingAuthenticator) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Purge drops every cached identity
func (c *CachingAuthenticator) Purge() {
	c.cache.Purge()
}
