package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirinyoku/tix-nights/internal/domain"
	"github.com/kirinyoku/tix-nights/internal/repository"
)

// InventoryStore keeps inventory records and reservation holds as JSON
// strings. Holds are written with a key TTL, so Redis evicts them even when
// no sweep ever runs.
type InventoryStore struct {
	rdb *redis.Client
}

var _ repository.InventoryStore = (*InventoryStore)(nil)

func NewInventoryStore(rdb *redis.Client) *InventoryStore {
	return &InventoryStore{rdb: rdb}
}

func (s *InventoryStore) GetInventory(ctx context.Context, nightKey string) (domain.InventoryRecord, error) {
	const op = "redisrepo.InventoryStore.GetInventory"

	rec, ok, err := getJSON[domain.InventoryRecord](ctx, s.rdb, KeyInventory(nightKey))
	if err != nil {
		return domain.InventoryRecord{}, wrapErr(op, err)
	}
	if !ok || rec.Sold == nil {
		rec.Sold = domain.Quantities{}
	}

	return rec, nil
}

func (s *InventoryStore) SetInventory(ctx context.Context, nightKey string, rec domain.InventoryRecord) error {
	const op = "redisrepo.InventoryStore.SetInventory"

	if err := setJSON(ctx, s.rdb, KeyInventory(nightKey), rec, 0); err != nil {
		return wrapErr(op, err)
	}

	return nil
}

func (s *InventoryStore) GetHold(ctx context.Context, sessionID, nightKey string) (domain.ReservationHold, error) {
	const op = "redisrepo.InventoryStore.GetHold"

	h, ok, err := getJSON[domain.ReservationHold](ctx, s.rdb, KeyHold(sessionID, nightKey))
	if err != nil {
		return domain.ReservationHold{}, wrapErr(op, err)
	}
	if !ok {
		return domain.ReservationHold{}, fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return h, nil
}

func (s *InventoryStore) PutHold(ctx context.Context, hold domain.ReservationHold, ttl time.Duration) error {
	const op = "redisrepo.InventoryStore.PutHold"

	if err := setJSON(ctx, s.rdb, KeyHold(hold.SessionID, hold.NightKey), hold, ttl); err != nil {
		return wrapErr(op, err)
	}

	return nil
}

func (s *InventoryStore) DeleteHold(ctx context.Context, sessionID, nightKey string) error {
	const op = "redisrepo.InventoryStore.DeleteHold"

	if err := s.rdb.Del(ctx, KeyHold(sessionID, nightKey)).Err(); err != nil {
		return wrapErr(op, err)
	}

	return nil
}

func (s *InventoryStore) ListHoldsForNight(ctx context.Context, nightKey string) ([]domain.ReservationHold, error) {
	return s.listByPattern(ctx, "redisrepo.InventoryStore.ListHoldsForNight", patternHoldsForNight(nightKey))
}

func (s *InventoryStore) ListHoldsForSession(ctx context.Context, sessionID string) ([]domain.ReservationHold, error) {
	return s.listByPattern(ctx, "redisrepo.InventoryStore.ListHoldsForSession", patternHoldsForSession(sessionID))
}

func (s *InventoryStore) ListHolds(ctx context.Context) ([]domain.ReservationHold, error) {
	return s.listByPattern(ctx, "redisrepo.InventoryStore.ListHolds", patternHolds())
}

func (s *InventoryStore) listByPattern(ctx context.Context, op, pattern string) ([]domain.ReservationHold, error) {
	keys, err := scanKeys(ctx, s.rdb, pattern)
	if err != nil {
		return nil, wrapErr(op, err)
	}

	holds := make([]domain.ReservationHold, 0, len(keys))
	if len(keys) == 0 {
		return holds, nil
	}

	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, wrapErr(op, err)
	}

	for i, v := range vals {
		// expired between SCAN and MGET
		if v == nil {
			continue
		}
		str, ok := v.(string)
		if !ok {
			continue
		}
		var h domain.ReservationHold
		if err := json.Unmarshal([]byte(str), &h); err != nil {
			return nil, fmt.Errorf("%s: %w: key %s: %v", op, repository.ErrCorrupt, keys[i], err)
		}
		holds = append(holds, h)
	}

	sort.Slice(holds, func(i, j int) bool {
		return holds[i].CreatedAt.Before(holds[j].CreatedAt)
	})

	return holds, nil
}

func wrapErr(op string, err error) error {
	var de errDecode
	if errors.As(err, &de) {
		return fmt.Errorf("%s: %w: %v", op, repository.ErrCorrupt, de.err)
	}

	return fmt.Errorf("%s: %w: %w", op, repository.ErrUnavailable, err)
}
