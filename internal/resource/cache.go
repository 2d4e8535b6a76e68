package resource

import (
	"image"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Resource is one decoded, renderer-consumable full-globe image.
type Resource struct {
	Identifier string
	Image      image.Image
	SizeBytes  int64
	FetchedAt  time.Time
}

// Cache is a process-wide keyed store of loaded resources with size
// accounting. Entries live for the process lifetime unless the size bound
// forces least-recently-used eviction.
type Cache struct {
	maxSize  int64 // Maximum cache size in bytes
	currSize int64 // Current cache size (atomic)

	mu        sync.RWMutex
	entries   map[string]*cacheEntry
	evictChan chan struct{} // Signal for background eviction
}

type cacheEntry struct {
	res        *Resource
	accessTime time.Time
}

// NewCache creates a resource cache bounded at maxSizeMB megabytes of
// decoded image data.
func NewCache(maxSizeMB int) *Cache {
	c := &Cache{
		maxSize:   int64(maxSizeMB) * 1024 * 1024,
		entries:   make(map[string]*cacheEntry),
		evictChan: make(chan struct{}, 1),
	}

	go c.evictionWorker()

	return c
}

// Get retrieves a resource and refreshes its access time.
func (c *Cache) Get(identifier string) (*Resource, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[identifier]
	if !exists {
		return nil, false
	}
	entry.accessTime = time.Now()
	return entry.res, true
}

// Contains reports whether a resource is present without touching its
// access time. Pure query, no side effects.
func (c *Cache) Contains(identifier string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, exists := c.entries[identifier]
	return exists
}

// Set stores a resource under its identifier, replacing any prior entry.
func (c *Cache) Set(res *Resource) {
	c.mu.Lock()
	if old, exists := c.entries[res.Identifier]; exists {
		atomic.AddInt64(&c.currSize, -old.res.SizeBytes)
	}
	c.entries[res.Identifier] = &cacheEntry{res: res, accessTime: time.Now()}
	c.mu.Unlock()

	atomic.AddInt64(&c.currSize, res.SizeBytes)

	// Trigger eviction if needed
	if atomic.LoadInt64(&c.currSize) > c.maxSize {
		select {
		case c.evictChan <- struct{}{}:
		default: // Already signaled
		}
	}
}

// evictionWorker runs in background and evicts old resources when the
// cache exceeds its size bound.
func (c *Cache) evictionWorker() {
	for range c.evictChan {
		c.evict()
	}
}

// evict removes least recently used resources until the cache is under
// 90% of its max size (the margin avoids thrashing at the boundary).
func (c *Cache) evict() {
	c.mu.Lock()
	defer c.mu.Unlock()

	currSize := atomic.LoadInt64(&c.currSize)
	if currSize <= c.maxSize {
		return
	}
	targetSize := c.maxSize * 9 / 10

	type ageEntry struct {
		identifier string
		accessTime time.Time
		size       int64
	}
	entries := make([]ageEntry, 0, len(c.entries))
	for id, entry := range c.entries {
		entries = append(entries, ageEntry{
			identifier: id,
			accessTime: entry.accessTime,
			size:       entry.res.SizeBytes,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].accessTime.Before(entries[j].accessTime)
	})

	for _, e := range entries {
		if currSize <= targetSize {
			break
		}
		delete(c.entries, e.identifier)
		atomic.AddInt64(&c.currSize, -e.size)
		currSize -= e.size
	}
}

// Stats returns cache statistics.
func (c *Cache) Stats() (entries int, sizeBytes int64, maxBytes int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries), atomic.LoadInt64(&c.currSize), c.maxSize
}

// Clear removes all cached resources.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	atomic.StoreInt64(&c.currSize, 0)
}
