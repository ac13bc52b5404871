// Package redislock implements a per-key lock shared by every instance of the service.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "rentals:lock:"

var ErrNotAcquired = errors.New("lock not acquired")

// Deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type Config struct {
	// TTL bounds how long a crashed holder can block the key.
	TTL        time.Duration
	RetryDelay time.Duration
}

type Locker struct {
	client     redis.UniversalClient
	ttl        time.Duration
	retryDelay time.Duration
}

func New(client redis.UniversalClient, conf Config) *Locker {
	l := &Locker{client: client, ttl: conf.TTL, retryDelay: conf.RetryDelay}

	if l.ttl <= 0 {
		l.ttl = 10 * time.Second
	}

	if l.retryDelay <= 0 {
		l.retryDelay = 25 * time.Millisecond
	}

	return l
}

// Acquire polls SET NX PX until the key is ours or ctx is done.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	redisKey := keyPrefix + key

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("set lock %s: %w", redisKey, err)
		}

		if ok {
			return func() {
				// Released with a fresh context so a cancelled request still frees the key.
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()

				_ = releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for lock %s: %w: %w", redisKey, ErrNotAcquired, ctx.Err())
		case <-time.After(l.retryDelay):
		}
	}
}
