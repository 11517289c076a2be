package cache

import "sync"

// InMemoryCache is a simple, concurrent-safe in-memory key-value store.
// When maxEntries is set, the oldest entries are evicted first.
type InMemoryCache struct {
	mu         sync.RWMutex
	items      map[string]any
	order      []string
	maxEntries int
}

// NewInMemoryCache creates and returns a new unbounded InMemoryCache.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		items: make(map[string]any),
	}
}

// NewBoundedCache creates a cache that holds at most maxEntries items.
func NewBoundedCache(maxEntries int) *InMemoryCache {
	return &InMemoryCache{
		items:      make(map[string]any),
		maxEntries: maxEntries,
	}
}

// Get retrieves a value from the cache.
// It returns the value and true if the key exists, otherwise nil and false.
func (c *InMemoryCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, found := c.items[key]
	return item, found
}

// Set adds or updates a value in the cache, evicting the oldest entry when full.
func (c *InMemoryCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists {
		if c.maxEntries > 0 && len(c.items) >= c.maxEntries {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.items, oldest)
		}
		c.order = append(c.order, key)
	}
	c.items[key] = value
}

// Delete removes a value from the cache.
func (c *InMemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists {
		return
	}
	delete(c.items, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of cached entries.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
