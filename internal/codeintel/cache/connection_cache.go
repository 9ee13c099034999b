package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// ConnectionHandle is the subset of store.Database the connection cache
// needs in order to close an evicted entry. It is satisfied by
// *store.Database; kept narrow here so this package does not import store
// (which in turn depends on cache for document/result-chunk caching).
type ConnectionHandle interface {
	Close() error
}

// ConnectionCache is an LRU of opened per-dump store handles, keyed by dump
// filename. Handles are reference-counted while borrowed: an entry evicted
// from the LRU while a caller is still inside WithConnection is not closed
// until that caller returns (spec.md §4.1, §5).
type ConnectionCache struct {
	mu    sync.Mutex
	cache *lru.Cache
}

type connectionCacheEntry struct {
	handle ConnectionHandle
	wg     sync.WaitGroup
	once   sync.Once
}

// NewConnectionCache constructs a ConnectionCache with the given capacity.
func NewConnectionCache(size int) (*ConnectionCache, error) {
	c := &ConnectionCache{}
	cache, err := lru.NewWithEvict(size, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.cache = cache
	return c, nil
}

// WithConnection borrows the handle for key, opening it via open on a miss,
// and invokes body with it. The handle is pinned (not closed by eviction)
// for the duration of body.
func (c *ConnectionCache) WithConnection(key string, open func() (ConnectionHandle, error), body func(ConnectionHandle) error) error {
	entry, err := c.borrow(key, open)
	if err != nil {
		return err
	}
	defer entry.wg.Done()

	return body(entry.handle)
}

func (c *ConnectionCache) borrow(key string, open func() (ConnectionHandle, error)) (*connectionCacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if raw, ok := c.cache.Get(key); ok {
		entry := raw.(*connectionCacheEntry)
		entry.wg.Add(1)
		return entry, nil
	}

	handle, err := open()
	if err != nil {
		return nil, err
	}

	entry := &connectionCacheEntry{handle: handle}
	entry.wg.Add(1)
	c.cache.Add(key, entry)
	return entry, nil
}

func (c *ConnectionCache) onEvict(_ interface{}, value interface{}) {
	entry := value.(*connectionCacheEntry)

	// Close happens once, after every in-flight borrow has returned, on a
	// dedicated goroutine so eviction (which runs under c.mu via the lru
	// package's Add/Remove path) never blocks on pending I/O.
	entry.once.Do(func() {
		go func() {
			entry.wg.Wait()
			_ = entry.handle.Close()
		}()
	})
}
