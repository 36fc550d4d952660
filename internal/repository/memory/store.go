package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kirinyoku/tix-nights/internal/clock"
	"github.com/kirinyoku/tix-nights/internal/domain"
	"github.com/kirinyoku/tix-nights/internal/repository"
)

type holdKey struct {
	session string
	night   string
}

type holdEntry struct {
	hold      domain.ReservationHold
	expiresAt time.Time
}

// Store keeps inventory in process memory. It is meant for local runs and
// tests: state is lost on restart and is not shared between processes.
type Store struct {
	mu        sync.RWMutex
	clock     clock.Clock
	inventory map[string]domain.InventoryRecord
	holds     map[holdKey]holdEntry
}

var (
	_ repository.InventoryStore = (*Store)(nil)
	_ repository.Replacer       = (*Store)(nil)
)

func New(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Store{
		clock:     clk,
		inventory: make(map[string]domain.InventoryRecord),
		holds:     make(map[holdKey]holdEntry),
	}
}

func (s *Store) GetInventory(ctx context.Context, nightKey string) (domain.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.inventory[nightKey]
	if !ok {
		return domain.InventoryRecord{Sold: domain.Quantities{}}, nil
	}
	return domain.InventoryRecord{Sold: rec.Sold.Clone()}, nil
}

func (s *Store) SetInventory(ctx context.Context, nightKey string, rec domain.InventoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inventory[nightKey] = domain.InventoryRecord{Sold: rec.Sold.Clone()}
	return nil
}

func (s *Store) ReplaceInventory(ctx context.Context, recs map[string]domain.InventoryRecord) (map[string]domain.InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := make(map[string]domain.InventoryRecord, len(recs))
	for k, rec := range recs {
		old := s.inventory[k]
		prev[k] = domain.InventoryRecord{Sold: old.Sold.Clone()}
		s.inventory[k] = domain.InventoryRecord{Sold: rec.Sold.Clone()}
	}
	return prev, nil
}

func (s *Store) GetHold(ctx context.Context, sessionID, nightKey string) (domain.ReservationHold, error) {
	const op = "memory.Store.GetHold"

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.holds[holdKey{sessionID, nightKey}]
	if !ok || !s.clock.Now().Before(e.expiresAt) {
		return domain.ReservationHold{}, fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}
	return copyHold(e.hold), nil
}

func (s *Store) PutHold(ctx context.Context, hold domain.ReservationHold, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.holds[holdKey{hold.SessionID, hold.NightKey}] = holdEntry{
		hold:      copyHold(hold),
		expiresAt: s.clock.Now().Add(ttl),
	}
	return nil
}

func (s *Store) DeleteHold(ctx context.Context, sessionID, nightKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.holds, holdKey{sessionID, nightKey})
	return nil
}

func (s *Store) ListHoldsForNight(ctx context.Context, nightKey string) ([]domain.ReservationHold, error) {
	return s.list(func(k holdKey) bool { return k.night == nightKey }), nil
}

func (s *Store) ListHoldsForSession(ctx context.Context, sessionID string) ([]domain.ReservationHold, error) {
	return s.list(func(k holdKey) bool { return k.session == sessionID }), nil
}

func (s *Store) ListHolds(ctx context.Context) ([]domain.ReservationHold, error) {
	return s.list(func(holdKey) bool { return true }), nil
}

// PurgeExpired drops holds whose store TTL has elapsed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var n int64
	for k, e := range s.holds {
		if !now.Before(e.expiresAt) {
			delete(s.holds, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) list(match func(holdKey) bool) []domain.ReservationHold {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock.Now()
	out := make([]domain.ReservationHold, 0)
	for k, e := range s.holds {
		if match(k) && now.Before(e.expiresAt) {
			out = append(out, copyHold(e.hold))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

func copyHold(h domain.ReservationHold) domain.ReservationHold {
	h.Quantities = h.Quantities.Clone()
	return h
}
