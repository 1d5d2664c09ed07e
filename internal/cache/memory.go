package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

type memoryCache struct {
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// MemoryOption customises the in-process provider.
type MemoryOption func(*memoryCache)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *memoryCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewMemory returns an in-process Provider. Expired entries are dropped
// lazily on access.
func NewMemory(opts ...MemoryOption) Provider {
	c := &memoryCache{now: time.Now, entries: make(map[string]memoryEntry)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *memoryCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && c.expired(entry) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := decode(entry.payload, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *memoryCache) Set(ctx context.Context, key string, value any, ttl TTL) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ttl.Stores() {
		return nil
	}
	payload, err := encode(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{payload: payload, expiresAt: ttl.ExpiresAt(c.now())}
	return nil
}

func (c *memoryCache) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *memoryCache) Size(_ context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var n int64
	for _, entry := range c.entries {
		if !c.expired(entry) {
			n++
		}
	}
	return n, nil
}

func (c *memoryCache) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (c *memoryCache) Close(_ context.Context) error {
	return nil
}

func (c *memoryCache) expired(entry memoryEntry) bool {
	return !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt)
}
