package booking

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrLockNotAcquired = errors.New("schedule lock not acquired")

// Locker guards the booking critical section for one provider's schedule
// on one date. Different keys never contend. Implementations must bound
// the acquisition wait and fail with ErrLockNotAcquired instead of
// blocking indefinitely.
type Locker interface {
	WithLock(ctx context.Context, key ScheduleKey, fn func(ctx context.Context) error) error
}

// LocalLocker is an in-process Locker: a channel semaphore per schedule
// key. It is the serialization layer the engine puts in front of stores
// that lack atomic read-modify-write, and the locker used in tests.
type LocalLocker struct {
	wait time.Duration

	mu   sync.Mutex
	sems map[string]chan struct{}
}

func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{
		wait: wait,
		sems: make(map[string]chan struct{}),
	}
}

func (l *LocalLocker) sem(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.sems[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.sems[key] = ch
	}
	return ch
}

func (l *LocalLocker) WithLock(ctx context.Context, key ScheduleKey, fn func(ctx context.Context) error) error {
	ch := l.sem(key.String())

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
	case <-timer.C:
		return ErrLockNotAcquired
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-ch }()

	return fn(ctx)
}
