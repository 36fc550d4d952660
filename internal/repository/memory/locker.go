package memory

import (
	"context"
	"sync"
	"time"
)

// Locker is an in-process named mutex set.
type Locker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[string]chan struct{})}
}

// Lock blocks until the named lock is free or ctx is done. ttl is ignored:
// the holder always runs in this process.
func (l *Locker) Lock(ctx context.Context, name string, _ time.Duration) (func(context.Context) error, error) {
	for {
		l.mu.Lock()
		ch, held := l.locks[name]
		if !held {
			ch = make(chan struct{})
			l.locks[name] = ch
			l.mu.Unlock()

			var once sync.Once
			return func(context.Context) error {
				once.Do(func() {
					l.mu.Lock()
					delete(l.locks, name)
					l.mu.Unlock()
					close(ch)
				})
				return nil
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
