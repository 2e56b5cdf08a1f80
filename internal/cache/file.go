package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const statsFile = "stats.json"

// FileCache implements Cache using one JSON file per entry.
type FileCache struct {
	stats    *Stats
	basePath string
	mu       sync.RWMutex
}

// cacheEntry represents a cached value with metadata.
type cacheEntry struct {
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
	Key       string        `json:"key"`
	Value     []byte        `json:"value"`
	TTL       time.Duration `json:"ttl"`
}

// NewFileCache creates a new file-based cache.
func NewFileCache(basePath string) (*FileCache, error) {
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	fc := &FileCache{
		basePath: basePath,
		stats:    &Stats{},
	}

	// A corrupt stats file only loses counters.
	_ = fc.loadStats()

	return fc, nil
}

// Get retrieves a cached value.
func (fc *FileCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	filename := fc.getFilename(key)

	data, err := os.ReadFile(filename) // #nosec G304 - filename is a hash under basePath
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fc.stats.recordMiss()
			return nil, false, nil
		}
		return nil, false, &Error{Op: "get", Key: key, Err: err}
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, &Error{Op: "unmarshal", Key: key, Err: err}
	}

	if !entry.ExpiresAt.IsZero() && time.Now().After(entry.ExpiresAt) {
		_ = os.Remove(filename)
		fc.stats.recordMiss()
		return nil, false, nil
	}

	fc.stats.recordHit()
	return entry.Value, true, nil
}

// Set stores a value in the cache. A zero ttl never expires.
func (fc *FileCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	now := time.Now()
	entry := cacheEntry{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		TTL:       ttl,
	}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return &Error{Op: "marshal", Key: key, Err: err}
	}

	// Write to a temp file and rename so readers never see a partial entry.
	filename := fc.getFilename(key)
	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return &Error{Op: "write", Key: key, Err: err}
	}
	if err := os.Rename(tmp, filename); err != nil {
		return &Error{Op: "write", Key: key, Err: err}
	}

	return fc.saveStats()
}

// Delete removes a value from the cache.
func (fc *FileCache) Delete(_ context.Context, key string) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if err := os.Remove(fc.getFilename(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &Error{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// Clear removes all cached values.
func (fc *FileCache) Clear(_ context.Context) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	entries, err := os.ReadDir(fc.basePath)
	if err != nil {
		return &Error{Op: "readdir", Key: fc.basePath, Err: err}
	}

	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == statsFile {
			continue
		}
		if err := os.Remove(filepath.Join(fc.basePath, entry.Name())); err != nil {
			return &Error{Op: "delete", Key: entry.Name(), Err: err}
		}
	}

	fc.stats = &Stats{}
	return fc.saveStats()
}

// Stats returns cache statistics.
func (fc *FileCache) Stats(_ context.Context) (*Stats, error) {
	fc.mu.RLock()
	defer fc.mu.RUnlock()

	s := *fc.stats
	entries, err := os.ReadDir(fc.basePath)
	if err != nil {
		return nil, &Error{Op: "readdir", Key: fc.basePath, Err: err}
	}

	s.TotalEntries = 0
	s.TotalSize = 0
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == statsFile || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		s.TotalSize += info.Size()
		s.TotalEntries++
	}
	return &s, nil
}

func (fc *FileCache) getFilename(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(fc.basePath, hex.EncodeToString(sum[:])+".json")
}

func (fc *FileCache) loadStats() error {
	data, err := os.ReadFile(filepath.Join(fc.basePath, statsFile)) // #nosec G304 - fixed name under basePath
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, fc.stats)
}

func (fc *FileCache) saveStats() error {
	data, err := json.MarshalIndent(fc.stats, "", "  ")
	if err != nil {
		return &Error{Op: "marshal", Key: statsFile, Err: err}
	}
	if err := os.WriteFile(filepath.Join(fc.basePath, statsFile), data, 0o600); err != nil {
		return &Error{Op: "write", Key: statsFile, Err: err}
	}
	return nil
}
