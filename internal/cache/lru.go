package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// item wraps a cached value with its expiry.
type item struct {
	data      []byte
	expiresAt time.Time
}

// LRUCache is an in-process cache bounded by entry count. Entries also
// expire individually.
type LRUCache struct {
	entries *lru.Cache[string, item]
	now     func() time.Time
}

var _ Cache = (*LRUCache)(nil)

// NewLRU creates an LRU cache holding at most size entries.
func NewLRU(size int) (*LRUCache, error) {
	l, err := lru.New[string, item](size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &LRUCache{entries: l, now: time.Now}, nil
}

func (c *LRUCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, ok := c.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	if c.now().After(val.expiresAt) {
		c.entries.Remove(key)
		return nil, false, nil
	}
	return val.data, true, nil
}

func (c *LRUCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.entries.Add(key, item{data: value, expiresAt: c.now().Add(ttl)})
	return nil
}

func (c *LRUCache) DeleteByPrefix(_ context.Context, prefix string) (int, error) {
	n := 0
	for _, key := range c.entries.Keys() {
		if strings.HasPrefix(key, prefix) && c.entries.Remove(key) {
			n++
		}
	}
	return n, nil
}

// Len reports the number of entries, expired ones included.
func (c *LRUCache) Len() int {
	return c.entries.Len()
}

func (c *LRUCache) Close() error {
	c.entries.Purge()
	return nil
}
