package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joshsymonds/advisor/pkg/logger"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg RedisConfig, log logger.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	if log != nil {
		log.Info("Connected to Redis", "addr", cfg.Addr)
	}
	return rdb, nil
}

// RedisCache stores values in Redis under a key prefix. Expiry is left to Redis.
type RedisCache struct {
	rdb    redis.UniversalClient
	prefix string
	stats  Stats
	mu     sync.Mutex
}

// NewRedisCache wraps a connected client.
func NewRedisCache(rdb redis.UniversalClient, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "advisor:cache:"
	}
	return &RedisCache{rdb: rdb, prefix: prefix}
}

// Get retrieves a value.
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.mu.Lock()
			r.stats.recordMiss()
			r.mu.Unlock()
			return nil, false, nil
		}
		return nil, false, &Error{Op: "get", Key: key, Err: err}
	}

	r.mu.Lock()
	r.stats.recordHit()
	r.mu.Unlock()
	return data, true, nil
}

// Set stores a value. A zero ttl never expires.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return &Error{Op: "set", Key: key, Err: err}
	}
	return nil
}

// Delete removes a value.
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.prefix+key).Err(); err != nil {
		return &Error{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// Stats returns hit counters for this process and the number of keys under the prefix.
func (r *RedisCache) Stats(ctx context.Context) (*Stats, error) {
	r.mu.Lock()
	s := r.stats
	r.mu.Unlock()

	iter := r.rdb.Scan(ctx, 0, r.prefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		s.TotalEntries++
	}
	if err := iter.Err(); err != nil {
		return nil, &Error{Op: "scan", Key: r.prefix, Err: err}
	}
	return &s, nil
}
