package computed

import "sync"

// Cache remembers the most recent Completed value it has observed so callers
// can keep showing it while a newer computation is in progress.
type Cache[T any] struct {
	mu      sync.Mutex
	initial T
	value   T
	seen    bool
}

func NewCache[T any](initial T) *Cache[T] {
	return &Cache[T]{initial: initial}
}

// Observe folds data into the cache and returns the value to display.
func (c *Cache[T]) Observe(data Data[T]) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	if data.State == Completed {
		c.value = data.Value
		c.seen = true
	}
	if !c.seen {
		return c.initial
	}
	return c.value
}

// Value returns the last completed value, or the initial value if none has
// been observed yet.
func (c *Cache[T]) Value() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.seen {
		return c.initial
	}
	return c.value
}

// Seen reports whether a Completed state has been observed.
func (c *Cache[T]) Seen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen
}

// Cached attaches a new cache to slot. The returned function detaches it.
func Cached[T any](slot *Slot[T], initial T) (*Cache[T], func()) {
	cache := NewCache(initial)
	stop := slot.Watch(func(data Data[T]) {
		cache.Observe(data)
	})
	return cache, stop
}
