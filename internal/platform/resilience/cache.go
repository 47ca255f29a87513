package resilience

import (
	"context"
	"sync"
	"time"
)

// CacheConfig holds TTL cache settings.
type CacheConfig struct {
	DefaultTTL time.Duration
	MaxEntries int
}

// DefaultCacheConfig returns the default cache settings.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		DefaultTTL: 5 * time.Minute,
		MaxEntries: 1000,
	}
}

type cacheEntry struct {
	value    interface{}
	storedAt time.Time
	ttl      time.Duration
}

// Cache is a thread-safe bounded TTL cache with lazy expiration. A read past
// an entry's TTL is a miss and evicts the entry. Writes beyond MaxEntries
// evict the oldest entry by stored-at time.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	cfg     CacheConfig
	now     func() time.Time
}

// NewCache creates a Cache with the given configuration.
func NewCache(cfg CacheConfig) *Cache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1000
	}
	return &Cache{
		entries: make(map[string]*cacheEntry),
		cfg:     cfg,
		now:     time.Now,
	}
}

// Get retrieves a value. Expired entries are deleted and reported as a miss.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) > e.ttl {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Set stores a value with the default TTL.
func (c *Cache) Set(key string, value interface{}) {
	c.SetTTL(key, value, c.cfg.DefaultTTL)
}

// SetTTL stores a value with an explicit TTL, evicting the oldest entry when
// the configured maximum size would be exceeded.
func (c *Cache) SetTTL(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.cfg.MaxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = &cacheEntry{
		value:    value,
		storedAt: c.now(),
		ttl:      ttl,
	}
}

func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, e := range c.entries {
		if first || e.storedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.storedAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

// Delete removes a single entry.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

// Len reports the current entry count, expired entries included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// StartCleanup runs a background goroutine that periodically removes expired
// entries. It stops when the context is cancelled.
func (c *Cache) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.mu.Lock()
				now := c.now()
				for k, e := range c.entries {
					if now.Sub(e.storedAt) > e.ttl {
						delete(c.entries, k)
					}
				}
				c.mu.Unlock()
			}
		}
	}()
}
