package nlu

import (
	"container/list"
	"sync"
)

// resultCache is a bounded, insertion-ordered cache of classifications keyed
// by normalized input text. When full, the oldest inserted entry is evicted
// (FIFO, not LRU): reads and overwrites do not refresh a key's position.
// Entries carry no expiry.
type resultCache struct {
	mu       sync.Mutex
	entries  map[string]*cacheEntry
	order    *list.List // keys in insertion order, oldest at front
	capacity int
}

type cacheEntry struct {
	result  Result
	element *list.Element
}

func newResultCache(capacity int) *resultCache {
	return &resultCache{
		entries:  make(map[string]*cacheEntry),
		order:    list.New(),
		capacity: capacity,
	}
}

// Get returns the cached result for a normalized key.
func (c *resultCache) Get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	return e.result, true
}

// Put stores a result. Overwriting an existing key keeps its original
// insertion position.
func (c *resultCache) Put(key string, res Result) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.result = res
		return
	}

	if len(c.entries) >= c.capacity {
		front := c.order.Front()
		if front != nil {
			oldest, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.entries, oldest)
		}
	}

	elem := c.order.PushBack(key)
	c.entries[key] = &cacheEntry{result: res, element: elem}
}

// Len returns the number of cached entries.
func (c *resultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
