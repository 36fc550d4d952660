package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kirinyoku/tix-nights/internal/repository"
)

// Only the token that took the lock may release it.
const luaCompareAndDelete = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

const (
	idemPending = "LOCK"
	idemResult  = "RES:"
)

// LockStore holds short-lived markers in Redis: named mutexes, "seen once"
// markers for webhook events and idempotent checkout responses.
type LockStore struct {
	rdb        *redis.Client
	retryEvery time.Duration
	unlock     *redis.Script
}

var _ repository.Locker = (*LockStore)(nil)

func NewLockStore(rdb *redis.Client) *LockStore {
	return &LockStore{
		rdb:        rdb,
		retryEvery: 25 * time.Millisecond,
		unlock:     redis.NewScript(luaCompareAndDelete),
	}
}

// Lock acquires the named lock, polling until ctx is done. The lock expires
// on its own after ttl if the holder never releases it.
func (s *LockStore) Lock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	const op = "redisrepo.LockStore.Lock"

	key := KeyLock(name)
	token := uuid.NewString()

	for {
		ok, err := s.rdb.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %w", op, repository.ErrUnavailable, err)
		}
		if ok {
			break
		}

		t := time.NewTimer(s.retryEvery)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-t.C:
		}
	}

	return func(ctx context.Context) error {
		if err := s.unlock.Run(ctx, s.rdb, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("%s: unlock: %w", op, err)
		}
		return nil
	}, nil
}

// MarkOnce sets key if absent. It reports true only for the first caller.
func (s *LockStore) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	const op = "redisrepo.LockStore.MarkOnce"

	ok, err := s.rdb.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w: %w", op, repository.ErrUnavailable, err)
	}

	return ok, nil
}

// Forget removes a marker set by MarkOnce or BeginIdempotent.
func (s *LockStore) Forget(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// BeginIdempotent claims key for an in-flight request. When a previous
// request already finished, its stored payload is returned with done=true.
// claimed=false, done=false means another request is still running.
func (s *LockStore) BeginIdempotent(ctx context.Context, key string, lockTTL time.Duration) (payload string, done, claimed bool, err error) {
	const op = "redisrepo.LockStore.BeginIdempotent"

	claimed, err = s.rdb.SetNX(ctx, key, idemPending, lockTTL).Result()
	if err != nil {
		return "", false, false, fmt.Errorf("%s: %w: %w", op, repository.ErrUnavailable, err)
	}
	if claimed {
		return "", false, true, nil
	}

	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; let the caller retry
		return "", false, false, nil
	}
	if err != nil {
		return "", false, false, fmt.Errorf("%s: %w: %w", op, repository.ErrUnavailable, err)
	}
	if strings.HasPrefix(v, idemResult) {
		return strings.TrimPrefix(v, idemResult), true, false, nil
	}

	return "", false, false, nil
}

// CompleteIdempotent stores the final payload for key.
func (s *LockStore) CompleteIdempotent(ctx context.Context, key, payload string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, idemResult+payload, ttl).Err()
}

// WebhookEventTTL outlives the processor's retry window for one event.
const WebhookEventTTL = 48 * time.Hour

// FirstDelivery reports whether a webhook event id is seen for the first time.
func (s *LockStore) FirstDelivery(ctx context.Context, eventID string) (bool, error) {
	return s.MarkOnce(ctx, KeyWebhookEvent(eventID), WebhookEventTTL)
}

// ForgetDelivery lets a failed event be processed again on redelivery.
func (s *LockStore) ForgetDelivery(ctx context.Context, eventID string) error {
	return s.Forget(ctx, KeyWebhookEvent(eventID))
}
