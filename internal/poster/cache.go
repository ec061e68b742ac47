package poster

import (
	"sync"
	"time"
)

// Cache is a process-wide TTL cache of resolved poster URLs keyed by TMDb id.
// Values are immutable once written; a refetch after expiry simply replaces
// the stale entry, so no coordination beyond the map lock is needed.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	url       string
	fetchedAt time.Time
}

// NewCache creates a Cache whose entries expire after ttl.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

// Get returns the cached URL for id if present and not expired.
func (c *Cache) Get(id string) (string, bool) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	if time.Since(e.fetchedAt) >= c.ttl {
		return "", false
	}
	return e.url, true
}

// Set stores a resolved URL for id, replacing any existing entry.
func (c *Cache) Set(id, url string) {
	c.mu.Lock()
	c.entries[id] = cacheEntry{url: url, fetchedAt: time.Now()}
	c.mu.Unlock()
}

// Len returns the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
