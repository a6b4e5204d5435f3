package naturalearth

import (
	"context"
	"sync"

	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/quake-exposure-service/internal/domain"
	"github.com/couchcryptid/quake-exposure-service/internal/observability"
)

// CachedLoader wraps a CityLoader with an in-memory LRU cache keyed by the
// source descriptor, so refresh cycles skip the disk and network entirely.
type CachedLoader struct {
	inner   domain.CityLoader
	cache   *lruCache[*geojson.FeatureCollection]
	metrics *observability.Metrics
}

// NewCachedLoader creates a cache decorator around a city loader.
func NewCachedLoader(inner domain.CityLoader, maxEntries int, metrics *observability.Metrics) *CachedLoader {
	return &CachedLoader{
		inner:   inner,
		cache:   newLRUCache[*geojson.FeatureCollection](maxEntries),
		metrics: metrics,
	}
}

// LoadCities returns the cached collection for src, loading it on a miss.
// Callers must treat the returned collection as read-only.
func (c *CachedLoader) LoadCities(ctx context.Context, src domain.CitySource) (*geojson.FeatureCollection, error) {
	key := src.Key()
	if fc, ok := c.cache.get(key); ok {
		c.metrics.CityCache.WithLabelValues("hit").Inc()
		return fc, nil
	}
	c.metrics.CityCache.WithLabelValues("miss").Inc()

	fc, err := c.inner.LoadCities(ctx, src)
	if err != nil {
		return nil, err
	}
	// Only cache non-empty collections so a bad download can be retried.
	if fc != nil && len(fc.Features) > 0 {
		c.cache.put(key, fc)
	}
	return fc, nil
}

// lruCache is a mutex-guarded LRU map from key to V. The list runs from the
// most recently used entry at head to the eviction candidate at tail.
type lruCache[V any] struct {
	capacity int
	mu       sync.Mutex
	items    map[string]*lruNode[V]
	head     *lruNode[V]
	tail     *lruNode[V]
}

type lruNode[V any] struct {
	key        string
	val        V
	prev, next *lruNode[V]
}

func newLRUCache[V any](capacity int) *lruCache[V] {
	capacity = max(capacity, 1)
	return &lruCache[V]{
		capacity: capacity,
		items:    make(map[string]*lruNode[V], capacity),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.promote(n)
	return n.val, true
}

func (c *lruCache[V]) put(key string, val V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.items[key]; ok {
		n.val = val
		c.promote(n)
		return
	}

	n := &lruNode[V]{key: key, val: val}
	c.items[key] = n
	c.pushHead(n)
	if len(c.items) > c.capacity {
		oldest := c.tail
		c.detach(oldest)
		delete(c.items, oldest.key)
	}
}

func (c *lruCache[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *lruCache[V]) promote(n *lruNode[V]) {
	if c.head == n {
		return
	}
	c.detach(n)
	c.pushHead(n)
}

func (c *lruCache[V]) pushHead(n *lruNode[V]) {
	n.prev, n.next = nil, c.head
	if c.head != nil {
		c.head.prev = n
	} else {
		c.tail = n
	}
	c.head = n
}

func (c *lruCache[V]) detach(n *lruNode[V]) {
	if n.prev == nil {
		c.head = n.next
	} else {
		n.prev.next = n.next
	}
	if n.next == nil {
		c.tail = n.prev
	} else {
		n.next.prev = n.prev
	}
}
