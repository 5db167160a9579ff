package cache

import (
	"context"
	"time"
)

// Cache is the key-value store behind verdict records and cached suites.
type Cache interface {
	BasicOps
	ZSetOps

	// Ping verifies the cache connection is alive
	Ping(ctx context.Context) error

	// Close closes the cache connection
	Close() error
}

// BasicOps defines basic key-value operations
type BasicOps interface {
	// Get retrieves the value for the given key. A missing key yields "" and no error.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair. A zero ttl never expires.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Del deletes one or more keys
	Del(ctx context.Context, keys ...string) error

	// Exists returns the number of the given keys that exist
	Exists(ctx context.Context, keys ...string) (int64, error)

	// Expire sets a timeout on a key
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Incr increments the integer stored at key, creating it at 0 first
	Incr(ctx context.Context, key string) (int64, error)
}

// ZMember is one scored member of a sorted set.
type ZMember struct {
	Score  float64
	Member string
}

// ZSetOps defines sorted set operations
type ZSetOps interface {
	ZAdd(ctx context.Context, key string, members ...ZMember) error

	// ZRevRange returns members from the highest score down, inclusive bounds
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	ZCard(ctx context.Context, key string) (int64, error)

	ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error
}
