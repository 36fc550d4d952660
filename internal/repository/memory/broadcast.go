package memory

import (
	"context"
	"sync"
)

// Broadcaster fans night-changed notifications out to in-process
// subscribers. Slow subscribers miss notifications rather than block
// publishers.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan string]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan string]struct{})}
}

func (b *Broadcaster) subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) PublishNightChanged(_ context.Context, nightKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		select {
		case ch <- nightKey:
		default:
		}
	}
	return nil
}

// Subscribe calls handler for every notification until ctx is done.
func (b *Broadcaster) Subscribe(ctx context.Context, handler func(ctx context.Context, nightKey string)) error {
	ch := make(chan string, 16)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case night := <-ch:
			handler(ctx, night)
		}
	}
}
