// Package cache holds the in-process caches used in front of the embedding
// service.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultCapacity = 512
	DefaultTTL      = 10 * time.Minute
)

// LRU is a size-bounded cache whose entries also expire after a TTL.
// It is safe for concurrent use.
type LRU[K comparable, V any] struct {
	now     func() time.Time
	entries map[K]*list.Element
	order   *list.List
	hits    atomic.Int64
	misses  atomic.Int64
	ttl     time.Duration
	cap     int
	mu      sync.Mutex
}

type item[K comparable, V any] struct {
	expiresAt time.Time
	key       K
	value     V
}

// NewLRU creates a cache holding at most capacity entries for ttl each.
// Non-positive values fall back to the package defaults.
func NewLRU[K comparable, V any](capacity int, ttl time.Duration) *LRU[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LRU[K, V]{
		now:     time.Now,
		entries: make(map[K]*list.Element, capacity),
		order:   list.New(),
		ttl:     ttl,
		cap:     capacity,
	}
}

// Get returns the cached value and marks it most recently used. Expired
// entries are dropped on access.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return zero, false
	}
	it := el.Value.(*item[K, V])
	if !c.now().Before(it.expiresAt) {
		c.remove(el)
		c.misses.Add(1)
		return zero, false
	}
	c.order.MoveToFront(el)
	c.hits.Add(1)
	return it.value, true
}

// Set stores value under key, evicting the least recently used entry when full.
func (c *LRU[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	if el, ok := c.entries[key]; ok {
		it := el.Value.(*item[K, V])
		it.value, it.expiresAt = value, expiresAt
		c.order.MoveToFront(el)
		return
	}

	for len(c.entries) >= c.cap {
		c.remove(c.order.Back())
	}
	c.entries[key] = c.order.PushFront(&item[K, V]{key: key, value: value, expiresAt: expiresAt})
}

// Len reports the number of entries, including ones that expired but have
// not been accessed since.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the hit and miss counters.
func (c *LRU[K, V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *LRU[K, V]) remove(el *list.Element) {
	it := c.order.Remove(el).(*item[K, V])
	delete(c.entries, it.key)
}
