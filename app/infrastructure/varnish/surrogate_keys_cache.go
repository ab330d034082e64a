package varnish

import "context"

// SurrogateKeysCache drives invalidation of tagged entries in the front
// cache.
type SurrogateKeysCache struct {
	backend CacheBackend
}

func NewSurrogateKeysCache(backend CacheBackend) *SurrogateKeysCache {
	return &SurrogateKeysCache{backend: backend}
}

// Invalidate purges every cached response tagged with the entry's key.
func (c *SurrogateKeysCache) Invalidate(ctx context.Context, entry NamedMapCacheEntry) error {
	return c.backend.Invalidate(ctx, entry.Key())
}
