package cache

import (
	"context"
	"errors"
	"time"

	memcache "github.com/miradorstack/mirador-relay/pkg/cache"
)

// Provider defines the key-value operations the dedup store needs.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Del(ctx context.Context, key string) error
	Close() error
}

// ErrCacheMiss signals that a cache key was not found.
var ErrCacheMiss = errors.New("cache miss")

// NoopProvider implements Provider but never stores data.
type NoopProvider struct{}

// Get always returns ErrCacheMiss.
func (NoopProvider) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheMiss
}

// Set discards the value and returns nil.
func (NoopProvider) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

// SetNX pretends to store the value and reports success.
func (NoopProvider) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return true, nil
}

// Incr counts nothing.
func (NoopProvider) Incr(context.Context, string, time.Duration) (int64, error) { return 0, nil }

// Del is a no-op for the noop cache.
func (NoopProvider) Del(context.Context, string) error { return nil }

// Close is a no-op.
func (NoopProvider) Close() error { return nil }

// MemoryProvider adapts the in-process MemoryCache to Provider.
type MemoryProvider struct {
	store *memcache.MemoryCache
}

// NewMemoryProvider wraps store, creating a fresh cache when store is nil.
func NewMemoryProvider(store *memcache.MemoryCache) *MemoryProvider {
	if store == nil {
		store = memcache.NewMemoryCache()
	}
	return &MemoryProvider{store: store}
}

func (p *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	value, ok := p.store.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return value, nil
}

func (p *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	p.store.Set(key, value, ttl)
	return nil
}

func (p *MemoryProvider) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return p.store.SetNX(key, value, ttl), nil
}

func (p *MemoryProvider) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	return p.store.Incr(key, ttl)
}

func (p *MemoryProvider) Del(_ context.Context, key string) error {
	p.store.Delete(key)
	return nil
}

func (p *MemoryProvider) Close() error { return nil }
