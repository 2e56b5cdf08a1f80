package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerExclusive(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	first, err := l.Acquire(ctx, "report:1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "report:1", first.Key())

	_, err = l.Acquire(ctx, "report:1", time.Minute)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	// Other keys are independent.
	other, err := l.Acquire(ctx, "report:2", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, first.Release(ctx))
	assert.ErrorIs(t, first.Release(ctx), ErrLockNotHeld)

	again, err := l.Acquire(ctx, "report:1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestMemoryLockerExpiry(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	stale, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, l.Held("k"))

	now = now.Add(2 * time.Minute)
	assert.False(t, l.Held("k"))

	fresh, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	// The expired holder can no longer release or extend the new holder's lock.
	assert.ErrorIs(t, stale.Release(ctx), ErrLockNotHeld)
	assert.ErrorIs(t, stale.Extend(ctx, time.Minute), ErrLockNotHeld)

	require.NoError(t, fresh.Extend(ctx, 10*time.Minute))
	now = now.Add(5 * time.Minute)
	assert.True(t, l.Held("k"))
}

func TestWithLockRenewsWhileRunning(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()
	ttl := 50 * time.Millisecond

	var secondErr error
	secondRan := false
	err := WithLock(ctx, l, ReportKey("r1"), ttl, func(ctx context.Context) error {
		time.Sleep(2 * ttl)
		secondErr = WithLock(ctx, l, ReportKey("r1"), ttl, func(context.Context) error {
			secondRan = true
			return nil
		})
		return ctx.Err()
	})

	require.NoError(t, err)
	assert.ErrorIs(t, secondErr, ErrLockNotAcquired)
	assert.False(t, secondRan)
	assert.False(t, l.Held(ReportKey("r1")))
}

// lostLock reports ErrLockNotHeld on every extend.
type lostLock struct{ key string }

func (l *lostLock) Key() string { return l.key }

func (l *lostLock) Release(context.Context) error { return ErrLockNotHeld }

func (l *lostLock) Extend(context.Context, time.Duration) error { return ErrLockNotHeld }

type lostLocker struct{}

func (lostLocker) Acquire(_ context.Context, key string, _ time.Duration) (Lock, error) {
	return &lostLock{key: key}, nil
}

func TestWithLockCancelsWhenLockLost(t *testing.T) {
	err := WithLock(context.Background(), lostLocker{}, "k", 30*time.Millisecond, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLockNotHeld)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithLockSerializes(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	var running, ran, rejected int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := WithLock(ctx, l, ReportKey("r1"), time.Minute, func(context.Context) error {
				if atomic.AddInt32(&running, 1) > 1 {
					t.Error("two holders at once")
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				atomic.AddInt32(&ran, 1)
				return nil
			})
			if errors.Is(err, ErrLockNotAcquired) {
				atomic.AddInt32(&rejected, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.GreaterOrEqual(t, ran, int32(1))
	assert.Equal(t, int32(8), ran+rejected)
	assert.False(t, l.Held(ReportKey("r1")))
}
