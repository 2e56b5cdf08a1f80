package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/joshsymonds/advisor/pkg/logger"
)

// Only delete or extend the key when we still own it.
var (
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	extendScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// RedisLocker provides distributed locks shared by every worker.
type RedisLocker struct {
	rdb       redis.UniversalClient
	log       logger.Logger
	keyPrefix string
}

// NewRedisLocker creates a locker on a connected client.
func NewRedisLocker(rdb redis.UniversalClient, keyPrefix string, log logger.Logger) *RedisLocker {
	if keyPrefix == "" {
		keyPrefix = "advisor:lock:"
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &RedisLocker{rdb: rdb, keyPrefix: keyPrefix, log: log}
}

// Acquire attempts to acquire a lock with SET NX.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lockKey := l.keyPrefix + key
	value := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, lockKey, value, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	l.log.Debug("Acquired lock", "key", key)
	return &redisLock{locker: l, key: key, redisKey: lockKey, value: value}, nil
}

type redisLock struct {
	locker   *RedisLocker
	key      string
	redisKey string
	value    string
}

func (lk *redisLock) Key() string { return lk.key }

func (lk *redisLock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, lk.locker.rdb, []string{lk.redisKey}, lk.value).Int64()
	if err != nil {
		return fmt.Errorf("releasing lock %s: %w", lk.key, err)
	}
	if result == 0 {
		return ErrLockNotHeld
	}

	lk.locker.log.Debug("Released lock", "key", lk.key)
	return nil
}

func (lk *redisLock) Extend(ctx context.Context, ttl time.Duration) error {
	result, err := extendScript.Run(ctx, lk.locker.rdb, []string{lk.redisKey}, lk.value, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extending lock %s: %w", lk.key, err)
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}
