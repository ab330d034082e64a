package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned when a requested key or hash field does not exist.
var ErrCacheMiss = errors.New("cache: key not found")

// CacheService defines the key-value operations the gateway persists through.
// Template collections are stored as one hash per owner; plain keys hold
// resolved map configurations and counters.
type CacheService interface {
	// HGet retrieves a hash field. Returns ErrCacheMiss if the field is absent.
	HGet(ctx context.Context, key, field string) (string, error)

	// HSet stores a hash field unconditionally. The returned flag reports
	// whether the field was newly created rather than overwritten.
	HSet(ctx context.Context, key, field, value string) (bool, error)

	// HSetNX stores a hash field only if it does not exist yet.
	// The returned flag reports whether the write took place.
	HSetNX(ctx context.Context, key, field, value string) (bool, error)

	// HDel removes a hash field, returning the number of fields removed.
	HDel(ctx context.Context, key, field string) (int64, error)

	// HKeys enumerates the field names of a hash.
	HKeys(ctx context.Context, key string) ([]string, error)

	// HLen returns the number of fields in a hash.
	HLen(ctx context.Context, key string) (int64, error)

	// Get retrieves a plain key. Returns ErrCacheMiss if the key is absent.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a plain key with an expiration time (0 means no expiry).
	Set(ctx context.Context, key, value string, expiration time.Duration) error

	// Incr increments a counter key, creating it at zero if absent.
	Incr(ctx context.Context, key string) (int64, error)

	// Close closes the cache connection
	Close() error

	// HealthCheck verifies cache connectivity
	HealthCheck(ctx context.Context) error
}
