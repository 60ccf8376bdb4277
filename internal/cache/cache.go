// Package cache implements the generic keyed TTL cache with coalesced
// single-flight misses (§4.B). The metadata client's lookups and the
// indexer gateway's search results are instances of Cache; the request
// dispatcher's non-blocking per-identifier lock is the separate KeyLock
// in lock.go.
package cache

import (
	"context"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"
)

// Cache wraps a TTL-bucketed map with a single-flight group keyed on the
// same string. Keys are plain strings, built by the caller; everything
// is bucketed by string to share one singleflight.Group cheaply.
type Cache[V any] struct {
	ttl   time.Duration
	inner *ttlcache.Cache[string, V]
	group singleflight.Group
}

// New builds a cache with defaultTTL applied to entries inserted via Set
// without an explicit TTL.
func New[V any](defaultTTL time.Duration) *Cache[V] {
	opts := ttlcache.Options[string, V]{}.SetDefaultTTL(defaultTTL)
	return &Cache[V]{
		ttl:   defaultTTL,
		inner: ttlcache.New(opts),
	}
}

// Lookup returns the cached value only if present and unexpired (P7).
func (c *Cache[V]) Lookup(key string) (V, bool) {
	return c.inner.Get(key)
}

// Insert writes key unconditionally with the cache's default TTL.
func (c *Cache[V]) Insert(key string, value V) {
	c.inner.Set(key, value, ttlcache.DefaultTTL)
}

// InsertTTL writes key with an explicit TTL override.
func (c *Cache[V]) InsertTTL(key string, value V, ttl time.Duration) {
	c.inner.Set(key, value, ttl)
}

// Delete evicts key immediately.
func (c *Cache[V]) Delete(key string) {
	c.inner.Delete(key)
}

// GetOrLoad implements the coalesced-miss protocol: on a cache miss,
// exactly one concurrent caller for key runs fn; everyone else blocks on
// its result rather than issuing a duplicate computation. A successful
// result is inserted into the cache before being returned.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, fn func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.inner.Get(key); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		v, err := fn(ctx)
		if err != nil {
			return v, err
		}
		c.Insert(key, v)
		return v, nil
	})

	v, _ := res.(V)
	return v, err
}

// Close releases the cache's background eviction goroutine.
func (c *Cache[V]) Close() {
	c.inner.Close()
}

// HashKey folds an arbitrary set of string parts into one cache key using
// a non-cryptographic hash, for callers that want a fixed-width key
// instead of a concatenated string (e.g. long search queries).
func HashKey(parts ...string) uint64 {
	h := xxhash.New()
	for _, p := range parts {
		_, _ = h.WriteString(p)
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}
