// Package lock provides the per-report mutual exclusion used by the job
// pipeline: at most one job may run against a report at a time.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrLockNotAcquired is returned when a lock is held by someone else.
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when releasing or extending a lock that expired or was taken over.
	ErrLockNotHeld = errors.New("lock not held")
)

// Locker hands out exclusive, expiring locks by key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// Lock is a held lock.
type Lock interface {
	Key() string
	Release(ctx context.Context) error
	Extend(ctx context.Context, ttl time.Duration) error
}

// WithLock runs fn while holding the lock for key. The lock is extended
// every ttl/3 until fn returns; if it is lost, fn's context is cancelled
// and the returned error wraps ErrLockNotHeld.
func WithLock(ctx context.Context, l Locker, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	held, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() { _ = held.Release(context.WithoutCancel(ctx)) }()

	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		keepAlive(jobCtx, held, ttl, done, cancel)
	}()

	err = fn(jobCtx)
	close(done)
	wg.Wait()

	if cause := context.Cause(jobCtx); err != nil && errors.Is(cause, ErrLockNotHeld) {
		return fmt.Errorf("lock %s lost while running: %w", key, errors.Join(cause, err))
	}
	return err
}

// keepAlive extends held until done closes or ctx ends. Transient extend
// errors are retried on the next tick; a lost lock cancels ctx.
func keepAlive(ctx context.Context, held Lock, ttl time.Duration, done <-chan struct{}, cancel context.CancelCauseFunc) {
	interval := ttl / 3
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := held.Extend(ctx, ttl); errors.Is(err, ErrLockNotHeld) {
				cancel(ErrLockNotHeld)
				return
			}
		}
	}
}

// ReportKey is the lock key guarding one report.
func ReportKey(reportID string) string {
	return "report:" + reportID
}
