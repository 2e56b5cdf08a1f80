package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryHold struct {
	expiresAt time.Time
	token     string
}

// MemoryLocker is a process-local Locker for single-worker deployments and tests.
type MemoryLocker struct {
	holds map[string]memoryHold
	now   func() time.Time
	mu    sync.Mutex
}

// NewMemoryLocker creates an empty process-local locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		holds: make(map[string]memoryHold),
		now:   time.Now,
	}
}

// Acquire takes the lock unless an unexpired holder exists.
func (m *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if h, ok := m.holds[key]; ok && now.Before(h.expiresAt) {
		return nil, ErrLockNotAcquired
	}

	token := uuid.NewString()
	m.holds[key] = memoryHold{token: token, expiresAt: now.Add(ttl)}
	return &memoryLock{locker: m, key: key, token: token}, nil
}

// Held reports whether key is currently locked.
func (m *MemoryLocker) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holds[key]
	return ok && m.now().Before(h.expiresAt)
}

type memoryLock struct {
	locker *MemoryLocker
	key    string
	token  string
}

func (l *memoryLock) Key() string { return l.key }

func (l *memoryLock) Release(_ context.Context) error {
	m := l.locker
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.holds[l.key]
	if !ok || h.token != l.token {
		return ErrLockNotHeld
	}
	delete(m.holds, l.key)
	return nil
}

func (l *memoryLock) Extend(_ context.Context, ttl time.Duration) error {
	m := l.locker
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.holds[l.key]
	if !ok || h.token != l.token || !m.now().Before(h.expiresAt) {
		return ErrLockNotHeld
	}
	h.expiresAt = m.now().Add(ttl)
	m.holds[l.key] = h
	return nil
}
