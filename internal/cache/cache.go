package cache

import "sync"

// Cache is a process-wide keyed cache with no TTL; entries live until
// explicitly replaced or invalidated. It is injected into consumers
// rather than reached through global state.
type Cache struct {
	mu   sync.RWMutex
	data map[string]any
}

func New() *Cache {
	return &Cache{data: map[string]any{}}
}

func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *Cache) Set(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = v
}

func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}
