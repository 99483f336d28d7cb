// Copyright 2024 the jdbi authors.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package cache implements the get-or-compute stores behind the registry. A
store holds discovered property tables, qualifier sets and enum name matches
for the lifetime of the registry that owns it. Entries are never evicted
individually, the whole store is discarded with its registry.
*/
package cache

import "sync"

// Cache memoizes a computed value per key. Values must be immutable once
// published: a value is inserted at most once per key and every subsequent
// caller observes that same value.
type Cache[K comparable, V any] struct {
	mutex   sync.RWMutex
	entries map[K]V
}

// New returns an empty cache.
func New[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{entries: map[K]V{}}
}

// GetOrCompute returns the value stored under key, computing and publishing
// it first if the key has not been seen. compute runs without the cache lock
// held, so concurrent misses on the same key may compute redundantly. Only
// one result is ever published; the redundant ones are discarded.
func (c *Cache[K, V]) GetOrCompute(key K, compute func() (V, error)) (V, error) {
	c.mutex.RLock()
	value, found := c.entries[key]
	c.mutex.RUnlock()
	if found {
		return value, nil
	}

	value, err := compute()
	if err != nil {
		var zero V
		return zero, err
	}

	c.mutex.Lock()
	// Check if a value has been inserted by someone else since we last
	// checked.
	if prev, found := c.entries[key]; found {
		value = prev
	} else {
		c.entries[key] = value
	}
	c.mutex.Unlock()

	return value, nil
}

// Peek returns the value stored under key without computing anything.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	value, found := c.entries[key]
	return value, found
}

// Len returns the number of published entries.
func (c *Cache[K, V]) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}
