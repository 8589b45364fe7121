// Package cache implements the bounded caches the engine leans on: TTL
// caches for the discovery quote and pair lookups and an LRU for
// opportunity/execution history. A redis.Client backs the TTL cache when
// provided; otherwise entries live only in the local map, which keeps the
// same package usable in unit tests without a live Redis instance.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nexusdex/arbengine/pkg/redis"
)

type entry struct {
	value    json.RawMessage
	expireAt time.Time
}

// TTLCache is a string-keyed cache with a fixed, uniform entry TTL,
// backing the discovery quote and token-pair caches.
type TTLCache struct {
	mu    sync.Mutex
	local map[string]entry
	ttl   time.Duration
	redis redis.Client
	// namespace prefixes every key when a shared Redis instance backs
	// more than one cache (e.g. distinguishing "price" from "pair").
	namespace string
}

// New constructs a TTLCache. redisClient may be nil, in which case the
// cache is purely in-process (still TTL-bounded, still lock-serialized).
func New(namespace string, ttl time.Duration, redisClient redis.Client) *TTLCache {
	return &TTLCache{
		local:     make(map[string]entry),
		ttl:       ttl,
		redis:     redisClient,
		namespace: namespace,
	}
}

func (c *TTLCache) key(k string) string {
	return c.namespace + ":" + k
}

// Get reports whether key is present and unexpired, decoding it into dst.
func (c *TTLCache) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	fullKey := c.key(key)

	if c.redis != nil {
		raw, err := c.redis.Get(ctx, fullKey)
		if err != nil {
			return false, nil //nolint:nilerr // redis miss == cache miss, not an error to the caller
		}
		if raw == "" {
			return false, nil
		}
		if err := json.Unmarshal([]byte(raw), dst); err != nil {
			return false, err
		}
		return true, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.local[fullKey]
	if !ok {
		return false, nil
	}
	if time.Now().After(e.expireAt) {
		delete(c.local, fullKey)
		return false, nil
	}
	if err := json.Unmarshal(e.value, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores value under key with the cache's configured TTL.
func (c *TTLCache) Set(ctx context.Context, key string, value interface{}) error {
	fullKey := c.key(key)
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	if c.redis != nil {
		return c.redis.Set(ctx, fullKey, string(raw), c.ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.local[fullKey] = entry{value: raw, expireAt: time.Now().Add(c.ttl)}
	return nil
}

// Invalidate drops key from the cache immediately.
func (c *TTLCache) Invalidate(ctx context.Context, key string) error {
	fullKey := c.key(key)
	if c.redis != nil {
		return c.redis.Del(ctx, fullKey)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.local, fullKey)
	return nil
}

// LRU is a bounded, insertion-order-evicting cache for opportunity and
// execution history. It intentionally has no TTL; entries live until
// evicted by capacity.
type LRU struct {
	mu       sync.Mutex
	capacity int
	order    []string
	items    map[string]interface{}
}

// NewLRU constructs an LRU cache bounded to capacity entries.
func NewLRU(capacity int) *LRU {
	if capacity <= 0 {
		capacity = 1
	}
	return &LRU{
		capacity: capacity,
		items:    make(map[string]interface{}, capacity),
	}
}

// Put inserts or refreshes key, evicting the oldest entry if at capacity.
func (l *LRU) Put(key string, value interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.items[key]; !exists {
		if len(l.order) >= l.capacity {
			oldest := l.order[0]
			l.order = l.order[1:]
			delete(l.items, oldest)
		}
		l.order = append(l.order, key)
	}
	l.items[key] = value
}

// Get returns the value stored under key, if present.
func (l *LRU) Get(key string) (interface{}, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.items[key]
	return v, ok
}

// Len reports the current number of entries.
func (l *LRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// All returns a snapshot slice of the cached values in insertion order.
func (l *LRU) All() []interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]interface{}, 0, len(l.order))
	for _, k := range l.order {
		out = append(out, l.items[k])
	}
	return out
}
