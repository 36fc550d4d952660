package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/tix-nights/internal/repository"
)

// Locker takes session-level advisory locks on a dedicated connection.
type Locker struct {
	pool *pgxpool.Pool
}

var _ repository.Locker = (*Locker)(nil)

// Lock blocks until the advisory lock for name is granted or ctx is done.
// The lock lives as long as the connection, so ttl is not used.
func (l *Locker) Lock(ctx context.Context, name string, _ time.Duration) (func(context.Context) error, error) {
	const op = "postgresrepo.Locker.Lock"

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, repository.ErrUnavailable, err)
	}

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtext($1))`, lockID(name)); err != nil {
		conn.Release()
		return nil, fmt.Errorf("%s: %w: %w", op, repository.ErrUnavailable, err)
	}

	return func(ctx context.Context) error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, lockID(name)); err != nil {
			return fmt.Errorf("%s: unlock: %w", op, err)
		}
		return nil
	}, nil
}

func lockID(name string) string {
	return "tixnights:" + name
}
