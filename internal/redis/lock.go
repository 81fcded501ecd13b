package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling-engine/internal/apperr"
)

// ErrLockNotAcquired means other bookings held the doctor-day for the whole wait
// budget. It says nothing about the requested interval, so it is retryable.
var ErrLockNotAcquired = apperr.New(apperr.Busy, "slot_being_booked",
	"another booking for this doctor and day is in progress, please retry")

const (
	defaultLockWait  = 2 * time.Second
	defaultLockRetry = 25 * time.Millisecond
)

// Locker is a per-key mutex across API instances. It only sheds contention in front
// of the database lock, so when Redis is unreachable the critical section runs without it.
type Locker struct {
	client  *redis.Client
	breaker *Breaker
	log     *zap.Logger
	ttl     time.Duration
	wait    time.Duration
	retry   time.Duration
}

// NewLocker builds a Locker. wait is how long to poll for a held key; zero uses the default.
func NewLocker(client *redis.Client, ttl, wait time.Duration, breaker *Breaker, log *zap.Logger) *Locker {
	if wait <= 0 {
		wait = defaultLockWait
	}
	return &Locker{
		client:  client,
		breaker: breaker,
		log:     log,
		ttl:     ttl,
		wait:    wait,
		retry:   defaultLockRetry,
	}
}

func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	token := uuid.NewString()

	acquired, err := l.acquire(ctx, key, token)
	switch {
	case err != nil && ctx.Err() != nil:
		// Network timeouts also match context.DeadlineExceeded, so only the
		// caller's own context decides whether to give up.
		return ctx.Err()
	case err != nil:
		l.log.Warn("redis lock unavailable, relying on database lock", zap.String("key", key), zap.Error(err))
		return fn(ctx)
	case !acquired:
		return ErrLockNotAcquired
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := l.release(releaseCtx, key, token); err != nil {
			l.log.Warn("redis lock release failed", zap.String("key", key), zap.Error(err))
		}
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

// acquire polls SETNX until it wins or the wait budget runs out.
func (l *Locker) acquire(ctx context.Context, key, token string) (bool, error) {
	deadline := time.Now().Add(l.wait)
	for {
		var ok bool
		err := l.breaker.Do(func() error {
			var err error
			ok, err = l.client.SetNX(ctx, key, token, l.ttl).Result()
			return err
		})
		if err != nil {
			return false, fmt.Errorf("acquire lock: %w", err)
		}
		if ok {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *Locker) release(ctx context.Context, key, token string) error {
	return l.breaker.Do(func() error {
		_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("release lock: %w", err)
		}
		return nil
	})
}
