package memory

import (
	"context"
	"sync"
)

// Deliveries remembers webhook event ids for the life of the process.
type Deliveries struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDeliveries() *Deliveries {
	return &Deliveries{seen: make(map[string]struct{})}
}

func (d *Deliveries) FirstDelivery(_ context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[eventID]; ok {
		return false, nil
	}
	d.seen[eventID] = struct{}{}
	return true, nil
}

func (d *Deliveries) ForgetDelivery(_ context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.seen, eventID)
	return nil
}
