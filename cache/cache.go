// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package cache provides the two read-side caches the ledger client needs:
// a TTL cache with single-flight fetch for values that go stale (per-owner
// record counts) and an LRU cache for immutable values (stored records,
// which never change once written).
package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/geth/common/lru"
	"golang.org/x/sync/singleflight"
)

type ttlItem[V any] struct {
	value     V
	timestamp time.Time
}

// TTLCache tracks per-key freshness and deduplicates concurrent fetches of
// the same key.
type TTLCache[K comparable, V any] struct {
	data    map[K]ttlItem[V]
	ttl     time.Duration
	lock    sync.RWMutex
	sfGroup singleflight.Group
}

func NewTTLCache[K comparable, V any](ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		data: make(map[K]ttlItem[V]),
		ttl:  ttl,
	}
}

// Get returns the cached value for key if it is still fresh, otherwise
// fetches it with fetchFunc. Concurrent fetches for the same key are
// deduplicated. If [invalidate] is true the entry is cleared before
// fetching, so no other reader can observe the stale value while the fetch
// is in flight.
func (c *TTLCache[K, V]) Get(key K, fetchFunc func(K) (V, error), invalidate bool) (V, error) {
	if invalidate {
		c.lock.Lock()
		delete(c.data, key)
		c.lock.Unlock()
	} else {
		c.lock.RLock()
		item, exists := c.data[key]
		c.lock.RUnlock()
		if exists && time.Since(item.timestamp) < c.ttl {
			return item.value, nil
		}
	}

	v, err, _ := c.sfGroup.Do(keyToString(key), func() (interface{}, error) {
		newValue, fetchErr := fetchFunc(key)
		if fetchErr != nil {
			return *new(V), fetchErr
		}

		c.lock.Lock()
		c.data[key] = ttlItem[V]{
			value:     newValue,
			timestamp: time.Now(),
		}
		c.lock.Unlock()

		return newValue, nil
	})
	if err != nil {
		return *new(V), err
	}

	return v.(V), nil
}

// keyToString allows both fmt.Stringer and primitive key types.
func keyToString[K comparable](key K) string {
	if s, ok := any(key).(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", key)
}

// LRUCache has the same Get interface as TTLCache but no expiration; it is
// for immutable data where a cached value can never be wrong, only absent.
type LRUCache[K comparable, V any] struct {
	cache *lru.Cache[K, V]
	lock  sync.RWMutex
}

func NewLRUCache[K comparable, V any](size int) *LRUCache[K, V] {
	return &LRUCache[K, V]{
		cache: lru.NewCache[K, V](size),
	}
}

// Get returns the cached value for key, fetching it with fetchFunc on a
// miss. If [invalidate] is true the entry is cleared first.
func (c *LRUCache[K, V]) Get(key K, fetchFunc func(K) (V, error), invalidate bool) (V, error) {
	if invalidate {
		c.lock.Lock()
		c.cache.Remove(key)
		c.lock.Unlock()
	} else {
		c.lock.RLock()
		if value, found := c.cache.Get(key); found {
			c.lock.RUnlock()
			return value, nil
		}
		c.lock.RUnlock()
	}

	newValue, err := fetchFunc(key)
	if err != nil {
		var zero V
		return zero, err
	}

	c.lock.Lock()
	c.cache.Add(key, newValue)
	c.lock.Unlock()

	return newValue, nil
}
