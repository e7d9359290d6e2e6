package lock

import (
	"context"
	"sync"
)

// NewLocalLocker returns a process-local Locker backed by per-key mutexes.
// Suitable for single-node deployments and tests.
func NewLocalLocker() Locker {
	return &localLocker{
		mutexes: make(map[string]*keyMutex),
	}
}

type localLocker struct {
	mu      sync.Mutex
	mutexes map[string]*keyMutex
}

type keyMutex struct {
	mu   sync.Mutex
	refs int
}

func (l *localLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if ctx.Value(contextKey(key)) != nil {
		return fn(ctx)
	}

	km := l.acquire(key)

	locked := make(chan struct{})

	go func() {
		km.mu.Lock()
		close(locked)
	}()

	select {
	case <-locked:
	case <-ctx.Done():
		// The goroutine still holds or will obtain the mutex; release it
		// once it does so the key does not stay locked forever.
		go func() {
			<-locked
			km.mu.Unlock()
			l.release(key, km)
		}()

		return ErrLockTimeout
	}

	defer func() {
		km.mu.Unlock()
		l.release(key, km)
	}()

	return fn(context.WithValue(ctx, contextKey(key), key))
}

func (l *localLocker) acquire(key string) *keyMutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	km, ok := l.mutexes[key]
	if !ok {
		km = &keyMutex{}
		l.mutexes[key] = km
	}

	km.refs++

	return km
}

func (l *localLocker) release(key string, km *keyMutex) {
	l.mu.Lock()
	defer l.mu.Unlock()

	km.refs--
	if km.refs == 0 {
		delete(l.mutexes, key)
	}
}
