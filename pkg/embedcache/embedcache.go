// Package embedcache holds recently computed question embeddings so the
// sub-searches of a single request (and closely spaced requests) do not
// re-embed identical text. Entries expire after a short TTL; eviction is
// opportunistic on insert rather than a strict LRU.
package embedcache

import (
	"strings"
	"sync"
	"time"
)

type entry struct {
	vector    []float32
	expiresAt time.Time
}

type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

type Option func(*Cache)

// WithClock substitutes the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithMaxSize bounds the number of retained entries.
func WithMaxSize(n int) Option {
	return func(c *Cache) {
		c.maxSize = n
	}
}

func New(ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		maxSize: 256,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func normalizeKey(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Get returns the cached vector for text, if present and fresh.
func (c *Cache) Get(text string) ([]float32, bool) {
	key := normalizeKey(text)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.now().After(e.expiresAt) {
		return nil, false
	}
	return e.vector, true
}

// Put stores a vector under the normalized text key, sweeping stale
// entries when the cache is full.
func (c *Cache) Put(text string, vector []float32) {
	key := normalizeKey(text)
	if key == "" || len(vector) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		c.sweepLocked()
		// Still full after the sweep: drop an arbitrary entry. Losing a
		// cached embedding only costs one extra upstream call.
		if len(c.entries) >= c.maxSize {
			for k := range c.entries {
				delete(c.entries, k)
				break
			}
		}
	}

	c.entries[key] = entry{vector: vector, expiresAt: c.now().Add(c.ttl)}
}

// Len reports the number of retained entries, fresh or stale.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) sweepLocked() {
	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}
