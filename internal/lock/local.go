// Package lock serializes work per key (a property or a customer/property pair).
package lock

import (
	"context"
	"sync"
)

type keyLock struct {
	ch   chan struct{}
	refs int
}

// Local is an in-process keyed mutex. It only protects a single instance.
type Local struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func NewLocal() *Local {
	return &Local{locks: make(map[string]*keyLock)}
}

// Acquire blocks until key is free or ctx is done. The returned release func is idempotent.
func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()

	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}

	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, kl)

		return nil, ctx.Err()
	}

	var once sync.Once

	return func() {
		once.Do(func() {
			<-kl.ch
			l.unref(key, kl)
		})
	}, nil
}

func (l *Local) unref(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.locks)
}
