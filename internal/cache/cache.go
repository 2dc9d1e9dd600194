// Package cache stores serialized query results under string keys and
// removes them by key prefix.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-valued cache with TTLs and prefix deletion.
type Cache interface {
	// Get returns the value and true on a hit.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// DeleteByPrefix removes every key starting with prefix and returns how
	// many were removed.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
	Close() error
}

// NoopCache never stores anything.
type NoopCache struct{}

var _ Cache = NoopCache{}

func (NoopCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (NoopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NoopCache) DeleteByPrefix(context.Context, string) (int, error) { return 0, nil }
func (NoopCache) Close() error { return nil }
