package memstore

import (
	"context"
	"sync"

	redisclient "github.com/hackgods/turnos-scheduling/internal/redis"
)

// Locker is an in-process redisclient.Locker with one mutex per key.
// Acquisition blocks until the lock is free or ctx is done.
type Locker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

var _ redisclient.Locker = (*Locker)(nil)

func NewLocker() *Locker {
	return &Locker{locks: map[string]chan struct{}{}}
}

func (l *Locker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	return ch
}

func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-ch }()
	return fn(ctx)
}

// BusyLocker refuses every lock, as a Redis locker does when another holder
// outlives the wait.
type BusyLocker struct{}

func (BusyLocker) WithLock(context.Context, string, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}
