package repository

import (
	"context"
	"time"

	"github.com/kirinyoku/tix-nights/internal/domain"
)

// InventoryStore is the durable key-value state shared by every request
// handler: confirmed sales per night and reservation holds per
// (session, night). Implementations keep no state between calls.
type InventoryStore interface {
	// GetInventory returns an all-zero record when the night was never written.
	GetInventory(ctx context.Context, nightKey string) (domain.InventoryRecord, error)
	// SetInventory overwrites the whole record.
	SetInventory(ctx context.Context, nightKey string, rec domain.InventoryRecord) error

	// GetHold returns ErrNotFound when no hold exists for the key.
	GetHold(ctx context.Context, sessionID, nightKey string) (domain.ReservationHold, error)
	// PutHold writes the hold; the store drops it on its own once ttl elapses.
	PutHold(ctx context.Context, hold domain.ReservationHold, ttl time.Duration) error
	// DeleteHold is a no-op for a missing key.
	DeleteHold(ctx context.Context, sessionID, nightKey string) error

	ListHoldsForNight(ctx context.Context, nightKey string) ([]domain.ReservationHold, error)
	ListHoldsForSession(ctx context.Context, sessionID string) ([]domain.ReservationHold, error)
	ListHolds(ctx context.Context) ([]domain.ReservationHold, error)
}

// Purger is implemented by stores whose TTL expiry needs an explicit pass.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Replacer is implemented by stores that can overwrite several inventory
// records at once. It returns the records that were replaced.
type Replacer interface {
	ReplaceInventory(ctx context.Context, recs map[string]domain.InventoryRecord) (map[string]domain.InventoryRecord, error)
}

// Locker serializes reservation attempts on one night.
type Locker interface {
	Lock(ctx context.Context, name string, ttl time.Duration) (unlock func(context.Context) error, err error)
}

// Notifier is told about every night whose availability may have changed.
type Notifier interface {
	PublishNightChanged(ctx context.Context, nightKey string) error
}
