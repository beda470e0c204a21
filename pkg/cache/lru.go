package cache

import (
	"container/list"
	"sync"
)

// lruCache evicts the least recently used entry once capacity is
// reached. Used for the per-session policy value cache, where the set
// of resolved comparison paths can grow with the statement stream.
type lruCache[V any] struct {
	mu       sync.Mutex
	maxSize  int
	items    map[string]*list.Element
	eviction *list.List
	stats    *Statistics
}

type lruEntry[V any] struct {
	key   string
	value V
}

func newLRUCache[V any](maxSize int) *lruCache[V] {
	return &lruCache[V]{
		maxSize:  maxSize,
		items:    make(map[string]*list.Element, maxSize),
		eviction: list.New(),
		stats:    NewStatistics(),
	}
}

// Get retrieves a value by key, marking it most recently used.
func (c *lruCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	elem, exists := c.items[key]
	if exists {
		c.eviction.MoveToFront(elem)
	}
	c.mu.Unlock()

	if !exists {
		c.stats.Miss()
		var zero V
		return zero, false
	}
	c.stats.Hit()
	return elem.Value.(*lruEntry[V]).value, true
}

// Set stores a value, evicting the least recently used entry when the
// cache is at capacity.
func (c *lruCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	if elem, exists := c.items[key]; exists {
		elem.Value.(*lruEntry[V]).value = value
		c.eviction.MoveToFront(elem)
		c.mu.Unlock()
		c.stats.Set()
		return false, nil
	}

	if c.eviction.Len() >= c.maxSize {
		oldest := c.eviction.Back()
		if oldest != nil {
			c.eviction.Remove(oldest)
			delete(c.items, oldest.Value.(*lruEntry[V]).key)
			c.stats.Evict()
		}
	}
	c.items[key] = c.eviction.PushFront(&lruEntry[V]{key: key, value: value})
	size := len(c.items)
	c.mu.Unlock()

	c.stats.Set()
	c.stats.UpdateSize(int64(size))
	return true, nil
}

// Delete removes an entry by key.
func (c *lruCache[V]) Delete(key string) (bool, error) {
	c.mu.Lock()
	elem, exists := c.items[key]
	if exists {
		c.eviction.Remove(elem)
		delete(c.items, key)
	}
	size := len(c.items)
	c.mu.Unlock()

	if exists {
		c.stats.Delete()
		c.stats.UpdateSize(int64(size))
	}
	return exists, nil
}

// Clear removes all entries.
func (c *lruCache[V]) Clear() error {
	c.mu.Lock()
	c.items = make(map[string]*list.Element, c.maxSize)
	c.eviction.Init()
	c.mu.Unlock()

	c.stats.UpdateSize(0)
	return nil
}

// Size returns the current number of entries.
func (c *lruCache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns cache statistics.
func (c *lruCache[V]) Stats() *Statistics {
	return c.stats
}
