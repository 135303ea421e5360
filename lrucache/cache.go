/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package lrucache provides an in-memory LRU cache with per-entry TTL and Prometheus metrics.
// The gateway keeps issued session tokens in it.
package lrucache

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

type cacheEntry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

func (e *cacheEntry[K, V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && e.expiresAt.Before(now)
}

// Options represents options for the cache.
type Options struct {
	// DefaultTTL is applied by Add. Zero means entries never expire.
	// Expired entries are dropped lazily on access and by SweepExpired.
	DefaultTTL time.Duration
}

// LRUCache is a size-bounded cache that evicts the least recently used entry on overflow.
type LRUCache[K comparable, V any] struct {
	maxEntries int
	defaultTTL time.Duration

	mu      sync.Mutex
	lruList *list.List
	cache   map[K]*list.Element

	metrics MetricsCollector
}

// New creates a new LRUCache. metrics may be nil.
func New[K comparable, V any](maxEntries int, metrics MetricsCollector, opts Options) (*LRUCache[K, V], error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("maxEntries must be greater than 0")
	}
	if opts.DefaultTTL < 0 {
		return nil, fmt.Errorf("defaultTTL must be greater or equal to 0 (no expiration)")
	}
	if metrics == nil {
		metrics = disabledMetrics{}
	}
	return &LRUCache[K, V]{
		maxEntries: maxEntries,
		defaultTTL: opts.DefaultTTL,
		lruList:    list.New(),
		cache:      make(map[K]*list.Element),
		metrics:    metrics,
	}, nil
}

// Get returns the value stored under key if it is present and not expired.
func (c *LRUCache[K, V]) Get(key K) (value V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, hit := c.cache[key]
	if !hit {
		c.metrics.IncMisses()
		return value, false
	}
	entry := elem.Value.(*cacheEntry[K, V])
	if entry.expired(time.Now()) {
		c.removeElement(elem)
		c.metrics.SetAmount(len(c.cache))
		c.metrics.IncMisses()
		return value, false
	}
	c.lruList.MoveToFront(elem)
	c.metrics.IncHits()
	return entry.value, true
}

// Add stores the value with the default TTL.
func (c *LRUCache[K, V]) Add(key K, value V) {
	c.AddWithTTL(key, value, c.defaultTTL)
}

// AddWithTTL stores the value with the given TTL (zero means no expiration), replacing any previous value.
func (c *LRUCache[K, V]) AddWithTTL(key K, value V, ttl time.Duration) {
	entry := &cacheEntry[K, V]{key: key, value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		elem.Value = entry
		c.lruList.MoveToFront(elem)
		return
	}
	c.cache[key] = c.lruList.PushFront(entry)
	if len(c.cache) > c.maxEntries {
		c.removeElement(c.lruList.Back())
		c.metrics.AddEvictions(1)
	}
	c.metrics.SetAmount(len(c.cache))
}

// GetOrAdd returns the value stored under key or stores the one made by newValue with the default TTL.
// newValue is called under the cache lock.
func (c *LRUCache[K, V]) GetOrAdd(key K, newValue func() V) (value V, exists bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if elem, hit := c.cache[key]; hit {
		entry := elem.Value.(*cacheEntry[K, V])
		if !entry.expired(now) {
			c.lruList.MoveToFront(elem)
			c.metrics.IncHits()
			return entry.value, true
		}
		c.removeElement(elem)
	}
	c.metrics.IncMisses()

	entry := &cacheEntry[K, V]{key: key, value: newValue()}
	if c.defaultTTL > 0 {
		entry.expiresAt = now.Add(c.defaultTTL)
	}
	c.cache[key] = c.lruList.PushFront(entry)
	if len(c.cache) > c.maxEntries {
		c.removeElement(c.lruList.Back())
		c.metrics.AddEvictions(1)
	}
	c.metrics.SetAmount(len(c.cache))
	return entry.value, false
}

// Remove deletes the entry and reports whether it was present.
func (c *LRUCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.cache[key]
	if !ok {
		return false
	}
	c.removeElement(elem)
	c.metrics.SetAmount(len(c.cache))
	return true
}

// SweepExpired drops all expired entries and returns how many were dropped.
// Entries without expiration time are not affected.
func (c *LRUCache[K, V]) SweepExpired() int {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var swept int
	for _, elem := range c.cache {
		if elem.Value.(*cacheEntry[K, V]).expired(now) {
			c.removeElement(elem)
			swept++
		}
	}
	c.metrics.SetAmount(len(c.cache))
	return swept
}

// Len returns the number of entries including expired ones not swept yet.
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

func (c *LRUCache[K, V]) removeElement(elem *list.Element) {
	c.lruList.Remove(elem)
	delete(c.cache, elem.Value.(*cacheEntry[K, V]).key)
}
