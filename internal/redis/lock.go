package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/barberflow/booking-engine/internal/booking"
)

// retryInterval is the pause between lock acquisition attempts while the
// bounded wait has not elapsed.
const retryInterval = 50 * time.Millisecond

type scheduleLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewScheduleLocker creates a booking.Locker backed by a per-(provider,
// date) Redis key. Acquisition retries with a short pause until wait has
// elapsed, then fails with booking.ErrLockNotAcquired so booking attempts
// never block indefinitely.
func NewScheduleLocker(client *redis.Client, ttl, wait time.Duration) booking.Locker {
	return &scheduleLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
	}
}

func (l *scheduleLocker) WithLock(ctx context.Context, key booking.ScheduleKey, fn func(ctx context.Context) error) error {
	redisKey := fmt.Sprintf("lock:schedule:%s", key)
	token := uuid.NewString()

	if err := l.acquire(ctx, redisKey, token); err != nil {
		return err
	}

	defer func() {
		_ = l.release(ctx, redisKey, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *scheduleLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire schedule lock: %w", err)
		}
		if ok {
			return nil
		}
		if time.Now().Add(retryInterval).After(deadline) {
			return booking.ErrLockNotAcquired
		}

		select {
		case <-time.After(retryInterval):
		case <-ctx.Done():
			return ctx.Err()
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

func (l *scheduleLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release schedule lock: %w", err)
	}
	return nil
}
