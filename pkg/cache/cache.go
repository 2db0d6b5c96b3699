package cache

import (
	"sync"

	"github.com/lenstools/metacal/pkg/errors"
)

// Cache is a generic, thread-safe cache for storing and retrieving values by key.
// Callers must treat any two values computed for the same key as
// interchangeable, so a lost update between concurrent writers is harmless;
// the map itself is still guarded by a mutex.
type Cache[K comparable, V any] interface {
	// Get retrieves a value from the cache
	Get(key K) (V, bool)

	// Put stores a value in the cache
	Put(key K, value V) error

	// GetOrCompute returns the cached value for key, computing and storing it
	// on a miss. The compute function runs outside the lock.
	GetOrCompute(key K, compute func() (V, error)) (V, error)

	// Clear removes all values from the cache
	Clear()

	// Len returns the number of cached values
	Len() int
}

// cache is the internal implementation of Cache
type cache[K comparable, V any] struct {
	mu       sync.RWMutex
	values   map[K]V
	capacity int
}

// New creates a new unbounded Cache instance
func New[K comparable, V any]() Cache[K, V] {
	return NewWithCapacity[K, V](0)
}

// NewWithCapacity creates a Cache holding at most capacity entries.
// A capacity of 0 means unbounded. When full, Put fails rather than evicting:
// callers that hit the bound recompute without caching.
func NewWithCapacity[K comparable, V any](capacity int) Cache[K, V] {
	return &cache[K, V]{
		values:   make(map[K]V),
		capacity: capacity,
	}
}

// Get retrieves a value from the cache
func (c *cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	value, ok := c.values[key]
	return value, ok
}

// Put stores a value in the cache
func (c *cache[K, V]) Put(key K, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.values[key]; !exists {
		if c.capacity > 0 && len(c.values) >= c.capacity {
			return errors.Newf(errors.ErrInvalidInput,
				"cache is full (capacity %d)", c.capacity).
				WithDetail("capacity", c.capacity)
		}
	}

	c.values[key] = value
	return nil
}

// GetOrCompute returns the cached value for key, computing it on a miss
func (c *cache[K, V]) GetOrCompute(key K, compute func() (V, error)) (V, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}

	value, err := compute()
	if err != nil {
		var zero V
		return zero, err
	}

	// A concurrent caller may have stored the same key already; values for
	// the same key are interchangeable, so overwriting is safe. A full cache
	// is not an error here, the computed value is still returned.
	_ = c.Put(key, value)

	return value, nil
}

// Clear removes all values from the cache
func (c *cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.values = make(map[K]V)
}

// Len returns the number of cached values
func (c *cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.values)
}
