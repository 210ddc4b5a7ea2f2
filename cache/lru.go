// Package cache provides the bounded LRU used to keep decoded manifest segments
// in memory between scans.
package cache

import (
	"container/list"
	"sync"
)

type cacheEntry[K comparable, V any] struct {
	key   K
	value V
}

// Options configures an LRU. All callbacks are optional and run under the cache lock,
// so they must not call back into the cache.
type Options[K comparable, V any] struct {
	Capacity  int
	OnEvicted func(key K, value V)
	OnHit     func(key K)
	OnMiss    func(key K)
}

// LRU is a fixed-size, concurrency-safe least-recently-used cache. A capacity of
// zero or less disables caching: Put is ignored and Get always misses.
type LRU[K comparable, V any] struct {
	mu    sync.Mutex
	opts  Options[K, V]
	order *list.List
	items map[K]*list.Element

	hits   uint64
	misses uint64
}

// New creates an LRU.
func New[K comparable, V any](opts Options[K, V]) *LRU[K, V] {
	return &LRU[K, V]{
		opts:  opts,
		order: list.New(),
		items: make(map[K]*list.Element),
	}
}

// Get retrieves a value and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (value V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opts.Capacity <= 0 {
		return value, false
	}
	if elem, found := c.items[key]; found {
		c.hits++
		if c.opts.OnHit != nil {
			c.opts.OnHit(key)
		}
		c.order.MoveToFront(elem)
		return elem.Value.(*cacheEntry[K, V]).value, true
	}
	c.misses++
	if c.opts.OnMiss != nil {
		c.opts.OnMiss(key)
	}
	return value, false
}

// Put inserts or replaces a value, evicting the least recently used entry when full.
func (c *LRU[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opts.Capacity <= 0 {
		return
	}
	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*cacheEntry[K, V]).value = value
		return
	}
	if c.order.Len() >= c.opts.Capacity {
		c.evict()
	}
	c.items[key] = c.order.PushFront(&cacheEntry[K, V]{key: key, value: value})
}

// Remove drops key if present. It reports whether an entry was removed.
func (c *LRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.order.Remove(elem)
	delete(c.items, key)
	return true
}

// Len returns the current number of entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// evict removes the least recently used entry. Must be called with c.mu locked.
func (c *LRU[K, V]) evict() {
	elem := c.order.Back()
	if elem == nil {
		return
	}
	removed := c.order.Remove(elem).(*cacheEntry[K, V])
	delete(c.items, removed.key)
	if c.opts.OnEvicted != nil {
		c.opts.OnEvicted(removed.key, removed.value)
	}
}

// Clear removes all entries, invoking OnEvicted for each, and resets hit counters.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opts.OnEvicted != nil {
		for _, elem := range c.items {
			e := elem.Value.(*cacheEntry[K, V])
			c.opts.OnEvicted(e.key, e.value)
		}
	}
	c.order = list.New()
	c.items = make(map[K]*list.Element)
	c.hits, c.misses = 0, 0
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (c *LRU[K, V]) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}
