// internal/cache/lru.go
//
// Small generic LRU cache with optional expiry.  Used by the backend client
// to keep recently fetched records.  Safe for concurrent use.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRU is a least-recently-used cache.  A zero ttl disables expiry.
type LRU[K comparable, V any] struct {
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	ll   *list.List
	dict map[K]*list.Element
	now  func() time.Time
}

type entry[K comparable, V any] struct {
	key     K
	val     V
	expires time.Time
}

// New returns an LRU with the given capacity.  Panics on capacity < 1.
func New[K comparable, V any](capacity int, ttl time.Duration) *LRU[K, V] {
	if capacity < 1 {
		panic("cache: capacity must be ≥1")
	}
	return &LRU[K, V]{
		cap:  capacity,
		ttl:  ttl,
		ll:   list.New(),
		dict: make(map[K]*list.Element, capacity),
		now:  time.Now,
	}
}

// Get retrieves a value and marks it most recently used.  Expired entries
// are dropped and reported as misses.
func (c *LRU[K, V]) Get(key K) (val V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ele, hit := c.dict[key]
	if !hit {
		return val, false
	}
	e := ele.Value.(*entry[K, V])
	if c.ttl > 0 && c.now().After(e.expires) {
		c.removeElement(ele)
		return val, false
	}
	c.ll.MoveToFront(ele)
	return e.val, true
}

// Add inserts or updates a value.
func (c *LRU[K, V]) Add(key K, val V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	exp := c.now().Add(c.ttl)
	if ele, hit := c.dict[key]; hit {
		e := ele.Value.(*entry[K, V])
		e.val, e.expires = val, exp
		c.ll.MoveToFront(ele)
		return
	}
	ele := c.ll.PushFront(&entry[K, V]{key: key, val: val, expires: exp})
	c.dict[key] = ele
	if c.ll.Len() > c.cap {
		c.removeElement(c.ll.Back())
	}
}

// Remove drops key if present.
func (c *LRU[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ele, hit := c.dict[key]; hit {
		c.removeElement(ele)
	}
}

// Purge drops every entry.
func (c *LRU[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.dict = make(map[K]*list.Element, c.cap)
}

// Len reports current size, expired entries included.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *LRU[K, V]) removeElement(ele *list.Element) {
	c.ll.Remove(ele)
	delete(c.dict, ele.Value.(*entry[K, V]).key)
}
