// Package cache provides a bounded, concurrency-safe memo for expensive
// derived values such as resolved meshes of shared representations.
package cache

import (
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Key is a cache key. String must be unique per distinct key value; it is
// used to coalesce concurrent resolutions.
type Key interface {
	comparable
	fmt.Stringer
}

// Stats contains cache statistics.
type Stats struct {
	Hits      int64
	Misses    int64 // resolutions actually executed
	Shared    int64 // callers that waited for another caller's resolution
	Evictions int64
	Size      int
	MaxSize   int
}

// Config contains cache configuration options.
type Config struct {
	// MaxSize is the maximum number of entries (0 = unlimited).
	MaxSize int
}

// DefaultConfig returns a default cache configuration.
func DefaultConfig() Config {
	return Config{MaxSize: 4096}
}

// store is the backing map: an LRU when bounded, a plain map otherwise.
type store[K Key, V any] interface {
	Get(key K) (V, bool)
	Add(key K, value V) bool
	Len() int
}

type mapStore[K Key, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

func (s *mapStore[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *mapStore[K, V]) Add(key K, value V) bool {
	s.mu.Lock()
	s.m[key] = value
	s.mu.Unlock()
	return false
}

func (s *mapStore[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Cache memoizes values per key. At most one resolution per key runs at a
// time; concurrent callers for the same key wait for and share its result.
// Failed resolutions are not cached.
type Cache[K Key, V any] struct {
	config Config
	store  store[K, V]
	group  singleflight.Group

	hits      atomic.Int64
	misses    atomic.Int64
	shared    atomic.Int64
	evictions atomic.Int64
}

// New creates a cache with the given configuration.
func New[K Key, V any](config Config) (*Cache[K, V], error) {
	if config.MaxSize < 0 {
		config.MaxSize = 0
	}
	c := &Cache[K, V]{config: config}
	if config.MaxSize == 0 {
		c.store = &mapStore[K, V]{m: make(map[K]V)}
		return c, nil
	}
	l, err := lru.NewWithEvict(config.MaxSize, func(K, V) {
		c.evictions.Add(1)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU: %w", err)
	}
	c.store = l
	return c, nil
}

// Get retrieves a value without resolving it.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	v, ok := c.store.Get(key)
	if ok {
		c.hits.Add(1)
	}
	return v, ok
}

// GetOrResolve returns the cached value for key, calling resolve to produce
// it on a miss.
func (c *Cache[K, V]) GetOrResolve(key K, resolve func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err, shared := c.group.Do(key.String(), func() (interface{}, error) {
		// Another flight may have finished between Get and Do.
		if v, ok := c.store.Get(key); ok {
			c.hits.Add(1)
			return v, nil
		}
		c.misses.Add(1)
		v, err := resolve()
		if err != nil {
			return nil, err
		}
		c.store.Add(key, v)
		return v, nil
	})
	if shared {
		c.shared.Add(1)
	}
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Len returns the number of entries in the cache.
func (c *Cache[K, V]) Len() int {
	return c.store.Len()
}

// Stats returns cache statistics.
func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Shared:    c.shared.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.store.Len(),
		MaxSize:   c.config.MaxSize,
	}
}

// HitRate returns the fraction of lookups served without a resolution.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses + s.Shared
	if total == 0 {
		return 0
	}
	return float64(s.Hits+s.Shared) / float64(total)
}
