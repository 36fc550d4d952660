package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// getJSON reads and decodes key. ok is false when the key does not exist.
func getJSON[T any](ctx context.Context, rdb *redis.Client, key string) (T, bool, error) {
	var zero T

	s, err := rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}

	var out T
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return zero, false, errDecode{err}
	}

	return out, true, nil
}

func setJSON(ctx context.Context, rdb *redis.Client, key string, val any, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return errDecode{err}
	}

	return rdb.Set(ctx, key, b, ttl).Err()
}

// scanKeys collects every key matching pattern using SCAN.
func scanKeys(ctx context.Context, rdb *redis.Client, pattern string) ([]string, error) {
	var keys []string

	iter := rdb.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	return keys, nil
}

type errDecode struct{ err error }

func (e errDecode) Error() string { return "decode: " + e.err.Error() }
func (e errDecode) Unwrap() error { return e.err }
