package iso9660

import "sync"

// objectCache memoizes directory objects by their UniqueCacheID, so
// repeated lookups of the same on-disc directory return the same Go value
// for the lifetime of the reader (spec.md §3 "Lifecycle"). It is not a
// general-purpose LRU: entries are never evicted, bounded only by the
// number of distinct directories a caller visits.
//
// The reader is documented non-reentrant, but the cache still takes a
// mutex: Materialize calls made from a caller's own goroutines should still
// see a consistent map.
type objectCache struct {
	mu   sync.Mutex
	dirs map[int64]*directory
}

func newObjectCache() *objectCache {
	return &objectCache{dirs: make(map[int64]*directory)}
}

func (c *objectCache) getDirectory(id int64) (*directory, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.dirs[id]
	return d, ok
}

func (c *objectCache) putDirectory(id int64, d *directory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirs[id] = d
}
