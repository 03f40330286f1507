package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
)

// Locker serialises moves of one application across api-server instances.
type Locker interface {
	Lock(ctx context.Context, applicationID string) (unlock func(), err error)
}

type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker holds each lock for at most ttl and waits up to wait to
// obtain it.
func NewRedisLocker(client *redislock.Client, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, wait: wait}
}

func (l *RedisLocker) Lock(ctx context.Context, applicationID string) (func(), error) {
	opts := &redislock.Options{}
	if l.wait > 0 {
		opts.RetryStrategy = redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), int(l.wait/(50*time.Millisecond)))
	}

	lock, err := l.client.Obtain(ctx, fmt.Sprintf("pipeline:move:%s", applicationID), l.ttl, opts)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrMoveInProgress
	}
	if err != nil {
		return nil, err
	}

	return func() {
		// Release with a fresh context so a cancelled request still frees the key.
		_ = lock.Release(context.Background())
	}, nil
}
