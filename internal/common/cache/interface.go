package cache

import (
	"context"
	"time"
)

// Cache defines the unified interface for cache operations.
// This abstraction allows switching between different cache implementations
// (Redis, local memory) without changing business logic. It is deliberately
// narrow: only the operations the engine's stores actually perform.
type Cache interface {
	BasicOps
	ZSetOps
	ScriptingOps

	// Ping verifies the cache connection is alive
	Ping(ctx context.Context) error

	// Close closes the cache connection
	Close() error
}

// ScriptingOps runs server-side scripts for operations that must be atomic
// across multiple commands.
type ScriptingOps interface {
	// Eval executes a Lua script with the given keys and arguments
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// BasicOps defines the key-value operations backing the attempt and run
// record stores.
type BasicOps interface {
	// Get retrieves the value for the given key
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair with optional TTL
	// If ttl is 0, the key will not expire
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// SetNX sets the value only if the key does not exist (atomic operation)
	// Returns true if the key was set, false if it already existed
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	// Del deletes one or more keys
	Del(ctx context.Context, keys ...string) error
}

// ZSetOps defines the sorted set reads backing the quota window. Writes to
// the window go through Eval so trim, count and record stay atomic.
type ZSetOps interface {
	// ZCard returns the number of members in a sorted set
	ZCard(ctx context.Context, key string) (int64, error)

	// ZRemRangeByScore removes members with scores inside [min, max]
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) error
}
