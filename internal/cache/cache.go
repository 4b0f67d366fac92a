// Package cache provides an in-memory tier for hot partition files. Pages
// are held snappy-compressed so a warm working set costs a fraction of its
// on-disk size.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/golang/snappy"
)

// Metrics holds cache statistics for observability.
type Metrics struct {
	Hits      atomic.Int64
	Misses    atomic.Int64
	Evictions atomic.Int64
	Entries   atomic.Int64
	SizeBytes atomic.Int64
}

// Cache is a size-bounded LRU of compressed partition pages keyed by path.
type Cache struct {
	maxBytes int64
	metrics  Metrics

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used
	size    int64
}

type page struct {
	path       string
	compressed []byte
}

// New creates a cache bounded to maxBytes of compressed pages.
func New(maxBytes int64) *Cache {
	if maxBytes <= 0 {
		maxBytes = 32 * 1024 * 1024
	}
	return &Cache{
		maxBytes: maxBytes,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached page contents, decompressed.
func (c *Cache) Get(path string) ([]byte, bool) {
	c.mu.Lock()
	el, ok := c.entries[path]
	if !ok {
		c.mu.Unlock()
		c.metrics.Misses.Add(1)
		return nil, false
	}
	c.order.MoveToFront(el)
	compressed := el.Value.(*page).compressed
	c.mu.Unlock()

	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		// A corrupt page is dropped rather than served.
		c.Invalidate(path)
		c.metrics.Misses.Add(1)
		return nil, false
	}
	c.metrics.Hits.Add(1)
	return data, true
}

// Put stores a page, evicting least-recently-used pages past the budget.
func (c *Cache) Put(path string, data []byte) {
	compressed := snappy.Encode(nil, data)
	if int64(len(compressed)) > c.maxBytes {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[path]; ok {
		c.size -= int64(len(el.Value.(*page).compressed))
		c.order.Remove(el)
		delete(c.entries, path)
		c.metrics.Entries.Add(-1)
	}

	for c.size+int64(len(compressed)) > c.maxBytes {
		back := c.order.Back()
		if back == nil {
			break
		}
		evicted := back.Value.(*page)
		c.size -= int64(len(evicted.compressed))
		c.order.Remove(back)
		delete(c.entries, evicted.path)
		c.metrics.Entries.Add(-1)
		c.metrics.Evictions.Add(1)
	}

	el := c.order.PushFront(&page{path: path, compressed: compressed})
	c.entries[path] = el
	c.size += int64(len(compressed))
	c.metrics.Entries.Add(1)
	c.metrics.SizeBytes.Store(c.size)
}

// Invalidate drops the page for a path, if cached.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[path]; ok {
		c.size -= int64(len(el.Value.(*page).compressed))
		c.order.Remove(el)
		delete(c.entries, path)
		c.metrics.Entries.Add(-1)
		c.metrics.SizeBytes.Store(c.size)
	}
}

// Stats returns current hit, miss, eviction, entry and size counters.
func (c *Cache) Stats() (hits, misses, evictions, entries, size int64) {
	return c.metrics.Hits.Load(),
		c.metrics.Misses.Load(),
		c.metrics.Evictions.Load(),
		c.metrics.Entries.Load(),
		c.metrics.SizeBytes.Load()
}
