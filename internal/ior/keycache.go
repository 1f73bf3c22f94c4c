package ior

import (
	"sync"

	"github.com/golang/groupcache/lru"
)

const DefaultKeyCacheSize = 1024

// KeyCache memoizes ParseObjectKey for hot raw keys.
type KeyCache struct {
	mu    sync.Mutex
	cache *lru.Cache
}

func NewKeyCache(size int) *KeyCache {
	if size <= 0 {
		size = DefaultKeyCacheSize
	}
	return &KeyCache{cache: lru.New(size)}
}

func (c *KeyCache) Parse(raw []byte) (*ObjectKey, error) {
	s := string(raw)
	c.mu.Lock()
	if v, ok := c.cache.Get(s); ok {
		c.mu.Unlock()
		return v.(*ObjectKey), nil
	}
	c.mu.Unlock()

	k, err := ParseObjectKey(raw)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.cache.Add(s, k)
	c.mu.Unlock()
	return k, nil
}

func (c *KeyCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}
