// Package cache provides the byte cache shared by the classifier and the
// report context builder.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Cache stores opaque values under string keys with a TTL.
// A miss is reported as found == false with a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Stats(ctx context.Context) (*Stats, error)
}

// Stats contains cache statistics.
type Stats struct {
	// TotalEntries is the number of cached entries
	TotalEntries int `json:"total_entries"`

	// HitRate is the cache hit rate (0-1)
	HitRate float64 `json:"hit_rate"`

	// TotalHits is the number of cache hits
	TotalHits int64 `json:"total_hits"`

	// TotalMisses is the number of cache misses
	TotalMisses int64 `json:"total_misses"`

	// TotalSize is the total size in bytes
	TotalSize int64 `json:"total_size"`
}

func (s *Stats) recordHit() {
	s.TotalHits++
	s.updateHitRate()
}

func (s *Stats) recordMiss() {
	s.TotalMisses++
	s.updateHitRate()
}

func (s *Stats) updateHitRate() {
	total := s.TotalHits + s.TotalMisses
	if total > 0 {
		s.HitRate = float64(s.TotalHits) / float64(total)
	}
}

// Error represents a cache-specific error.
type Error struct {
	Err error
	Op  string
	Key string
}

func (e *Error) Error() string {
	return "cache " + e.Op + " failed for key " + e.Key + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Key derives a fixed-length key from its parts. Parts are length-prefixed
// so ("ab", "c") and ("a", "bc") never collide.
func Key(namespace string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		var n [8]byte
		l := uint64(len(p))
		for i := range n {
			n[i] = byte(l >> (8 * i))
		}
		h.Write(n[:])
		h.Write([]byte(p))
	}
	return namespace + ":" + hex.EncodeToString(h.Sum(nil))
}

// GetJSON decodes a cached JSON value into v.
func GetJSON(ctx context.Context, c Cache, key string, v any) (bool, error) {
	data, found, err := c.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, &Error{Op: "unmarshal", Key: key, Err: err}
	}
	return true, nil
}

// SetJSON encodes v as JSON and stores it.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &Error{Op: "marshal", Key: key, Err: err}
	}
	return c.Set(ctx, key, data, ttl)
}

// Nop is a cache that never stores anything.
type Nop struct{}

// Get always misses.
func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

// Set discards the value.
func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }

// Delete does nothing.
func (Nop) Delete(context.Context, string) error { return nil }

// Stats returns empty statistics.
func (Nop) Stats(context.Context) (*Stats, error) { return &Stats{}, nil }
