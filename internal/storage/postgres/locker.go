package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Locker holds session-level advisory locks, so every instance sharing the database
// serializes on the same keys.
type Locker struct {
	pool *pgxpool.Pool
}

func NewLocker(pool *pgxpool.Pool) *Locker {
	return &Locker{pool: pool}
}

// Acquire pins a pooled connection for the lifetime of the lock. Cancelling ctx aborts the wait.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection for lock %s: %w", key, err)
	}

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtext($1))`, key); err != nil {
		conn.Release()

		return nil, fmt.Errorf("advisory lock %s: %w", key, err)
	}

	var once sync.Once

	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, key); err != nil {
				// A session that failed to unlock must not go back to the pool still holding the lock.
				_ = conn.Conn().Close(ctx)
			}

			conn.Release()
		})
	}, nil
}
