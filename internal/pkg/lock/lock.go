// Package lock provides keyed mutual exclusion. Each key (a game code, a
// wallet address) gets its own mutex; unrelated keys never contend.
package lock

import (
	"context"
	"sync"
	"time"
)

type keyMutex struct {
	mu sync.Mutex
}

// KeyLock serializes work per key.
type KeyLock[K comparable] struct {
	locks sync.Map // map[K]*keyMutex
	pool  sync.Pool
}

// NewKeyLock creates a new KeyLock instance.
func NewKeyLock[K comparable]() *KeyLock[K] {
	return &KeyLock[K]{
		pool: sync.Pool{
			New: func() any {
				return &keyMutex{}
			},
		},
	}
}

// getLock retrieves or creates the mutex for key.
func (kl *KeyLock[K]) getLock(key K) *keyMutex {
	if v, ok := kl.locks.Load(key); ok {
		return v.(*keyMutex)
	}

	fresh := kl.pool.Get().(*keyMutex)

	actual, loaded := kl.locks.LoadOrStore(key, fresh)
	if loaded {
		kl.pool.Put(fresh)
	}
	return actual.(*keyMutex)
}

// Lock acquires the lock for key.
func (kl *KeyLock[K]) Lock(key K) {
	kl.getLock(key).mu.Lock()
}

// Unlock releases the lock for key.
func (kl *KeyLock[K]) Unlock(key K) {
	if v, ok := kl.locks.Load(key); ok {
		v.(*keyMutex).mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
func (kl *KeyLock[K]) TryLock(key K) bool {
	return kl.getLock(key).mu.TryLock()
}

// LockWithTimeout attempts to acquire the lock until timeout elapses or ctx
// is done. Returns false if the lock was not acquired.
func (kl *KeyLock[K]) LockWithTimeout(ctx context.Context, key K, timeout time.Duration) bool {
	m := kl.getLock(key)
	if m.mu.TryLock() {
		return true
	}

	acquired := make(chan struct{})
	go func() {
		m.mu.Lock()
		close(acquired)
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-acquired:
		return true
	case <-timeoutCtx.Done():
		// The waiter still owns a pending Lock call; hand the mutex straight
		// back once it gets it.
		go func() {
			<-acquired
			m.mu.Unlock()
		}()
		return false
	}
}

// WithLock executes fn while holding the lock for key.
func (kl *KeyLock[K]) WithLock(key K, fn func() error) error {
	kl.Lock(key)
	defer kl.Unlock(key)
	return fn()
}

// WithLockContext executes fn while holding the lock for key, giving up with
// ErrLockTimeout if the lock cannot be taken within timeout.
func (kl *KeyLock[K]) WithLockContext(ctx context.Context, key K, timeout time.Duration, fn func() error) error {
	if !kl.LockWithTimeout(ctx, key, timeout) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrLockTimeout
	}
	defer kl.Unlock(key)

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}

// IsLocked reports whether key is currently held. The answer is a
// point-in-time observation.
func (kl *KeyLock[K]) IsLocked(key K) bool {
	if v, ok := kl.locks.Load(key); ok {
		m := v.(*keyMutex)
		if m.mu.TryLock() {
			m.mu.Unlock()
			return false
		}
		return true
	}
	return false
}
