package gormstore

import (
	"context"
	"sync"
)

// scopeLocks is a set of per-key mutexes whose waits honor a context.
// Entries are dropped once nobody holds or waits on them.
type scopeLocks struct {
	mu    sync.Mutex
	locks map[string]*scopeLock
}

type scopeLock struct {
	ch   chan struct{}
	refs int
}

func newScopeLocks() *scopeLocks {
	return &scopeLocks{locks: make(map[string]*scopeLock)}
}

// acquire blocks until key is free or ctx is done. The returned func
// releases the lock and must be called exactly once.
func (l *scopeLocks) acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	sl, ok := l.locks[key]
	if !ok {
		sl = &scopeLock{ch: make(chan struct{}, 1)}
		l.locks[key] = sl
	}
	sl.refs++
	l.mu.Unlock()

	select {
	case sl.ch <- struct{}{}:
		return func() {
			<-sl.ch
			l.unref(key, sl)
		}, nil
	case <-ctx.Done():
		l.unref(key, sl)
		return nil, ctx.Err()
	}
}

func (l *scopeLocks) unref(key string, sl *scopeLock) {
	l.mu.Lock()
	sl.refs--
	if sl.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

// held reports the number of keys currently tracked.
func (l *scopeLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
