package cache

import (
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
)

// valueCache is an LRU of immutable decoded values keyed by string, with a
// per-key single-flight so a factory for a missing key runs at most once
// concurrently (spec.md §4.1, §9). DocumentCache and ResultChunkCache
// are thin typed wrappers over this.
type valueCache struct {
	cache *lru.Cache
	group singleflight.Group
}

func newValueCache(size int) (*valueCache, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}

	return &valueCache{cache: cache}, nil
}

func (c *valueCache) get(key string, factory func() (interface{}, error)) (interface{}, error) {
	if value, ok := c.cache.Get(key); ok {
		return value, nil
	}

	value, err, _ := c.group.Do(key, func() (interface{}, error) {
		if value, ok := c.cache.Get(key); ok {
			return value, nil
		}

		value, err := factory()
		if err != nil {
			return nil, err
		}

		c.cache.Add(key, value)
		return value, nil
	})

	return value, err
}

// DocumentCache holds decoded Document payloads, keyed by "dumpID:path".
type DocumentCache struct{ *valueCache }

// NewDocumentCache constructs a DocumentCache with the given capacity,
// accounted in number of decoded documents (spec.md §4.1's "cheap proxy").
func NewDocumentCache(size int) (*DocumentCache, error) {
	c, err := newValueCache(size)
	if err != nil {
		return nil, err
	}
	return &DocumentCache{c}, nil
}

// Get returns the cached value for key, invoking factory on a miss.
func (c *DocumentCache) Get(key string, factory func() (interface{}, error)) (interface{}, error) {
	return c.valueCache.get(key, factory)
}

// ResultChunkCache holds decoded ResultChunk payloads, keyed by
// "dumpID:chunkID".
type ResultChunkCache struct{ *valueCache }

// NewResultChunkCache constructs a ResultChunkCache with the given capacity.
func NewResultChunkCache(size int) (*ResultChunkCache, error) {
	c, err := newValueCache(size)
	if err != nil {
		return nil, err
	}
	return &ResultChunkCache{c}, nil
}

// Get returns the cached value for key, invoking factory on a miss.
func (c *ResultChunkCache) Get(key string, factory func() (interface{}, error)) (interface{}, error) {
	return c.valueCache.get(key, factory)
}
