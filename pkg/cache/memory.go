// Package cache provides an in-process TTL store that mimics the Valkey
// commands the relay relies on. It backs local development and tests.
package cache

import (
	"strconv"
	"sync"
	"time"
)

// MemoryCache is a lightweight in-memory stand-in for Valkey.
type MemoryCache struct {
	mu   sync.Mutex
	data map[string]item
	now  func() time.Time
}

type item struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache creates an in-memory cache simulating Valkey behaviour.
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithClock(time.Now)
}

// NewMemoryCacheWithClock lets tests control expiry.
func NewMemoryCacheWithClock(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{data: make(map[string]item), now: now}
}

// Get retrieves a cached value if present and not expired.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.live(key)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), it.value...), true
}

// Set stores a value with optional TTL.
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = item{value: append([]byte(nil), value...), expiresAt: c.expiry(ttl)}
}

// SetNX stores the value only when the key is absent or expired.
func (c *MemoryCache) SetNX(key string, value []byte, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.live(key); ok {
		return false
	}
	c.data[key] = item{value: append([]byte(nil), value...), expiresAt: c.expiry(ttl)}
	return true
}

// Incr increments an integer counter, creating it at 1. A positive ttl is applied
// only when the counter is created, matching INCR followed by a first-time PEXPIRE.
func (c *MemoryCache) Incr(key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.live(key)
	if !ok {
		c.data[key] = item{value: []byte("1"), expiresAt: c.expiry(ttl)}
		return 1, nil
	}
	n, err := strconv.ParseInt(string(it.value), 10, 64)
	if err != nil {
		return 0, err
	}
	n++
	it.value = []byte(strconv.FormatInt(n, 10))
	c.data[key] = it
	return n, nil
}

// Delete removes an entry.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// live must be called with c.mu held.
func (c *MemoryCache) live(key string) (item, bool) {
	it, ok := c.data[key]
	if !ok {
		return item{}, false
	}
	if !it.expiresAt.IsZero() && !c.now().Before(it.expiresAt) {
		delete(c.data, key)
		return item{}, false
	}
	return it, true
}

func (c *MemoryCache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}
