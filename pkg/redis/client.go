// Package redis wraps go-redis/v8 down to the surface the engine's caches
// actually call: get/set/delete a key with a TTL, plus lifecycle
// ping/close. pkg/cache.TTLCache is the only consumer; it never needs
// hashes, pub/sub, or pipelining, so this package does not expose them.
package redis

import (
	"context"
	"time"
)

// Config represents Redis connection settings.
type Config struct {
	Addresses       []string      // Redis server addresses (host:port)
	Host            string        // Redis host (for single instance)
	Port            int           // Redis port (for single instance)
	Password        string        // Redis password
	DB              int           // Redis database
	PoolSize        int           // Connection pool size
	MinIdleConns    int           // Minimum number of idle connections
	DialTimeout     time.Duration // Dial timeout
	ReadTimeout     time.Duration // Read timeout
	WriteTimeout    time.Duration // Write timeout
	PoolTimeout     time.Duration // Pool timeout
	IdleTimeout     time.Duration // Idle timeout
	MaxRetries      int           // Maximum number of retries
	MinRetryBackoff time.Duration // Minimum retry backoff
	MaxRetryBackoff time.Duration // Maximum retry backoff
	EnableCluster   bool          // Whether to use Redis cluster
}

// Client is the cache-backing surface this module needs from Redis.
type Client interface {
	// Get gets a value from Redis.
	Get(ctx context.Context, key string) (string, error)

	// Set sets a value in Redis with an expiration.
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error

	// Del deletes keys from Redis.
	Del(ctx context.Context, keys ...string) error

	// Ping checks the Redis connection.
	Ping(ctx context.Context) error

	// Close closes the Redis client.
	Close() error
}
