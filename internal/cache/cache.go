package cache

import (
	"context"
	"sync"
	"time"

	"github.com/saqib-21/WellandCanalStatus/internal/models"
)

// Entry is the latest parsed result for one source. Data and FetchedAt are always
// stored and returned together.
type Entry struct {
	Data      []models.BridgeStatus `json:"data"`
	FetchedAt time.Time             `json:"fetchedAt"`
}

// Age returns how old the entry is at now.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// FreshAt reports whether the entry is still within ttl at now.
func (e Entry) FreshAt(now time.Time, ttl time.Duration) bool {
	return !e.FetchedAt.IsZero() && e.Age(now) < ttl
}

// Cache defines the interface for per-source entry storage.
// Freshness is decided by the caller from Entry.FetchedAt; backends only store.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
}

// InMemoryCache implements Cache using a mutex-protected map. Safe for concurrent use.
type InMemoryCache struct {
	mu   sync.RWMutex
	data map[string]Entry
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]Entry),
	}
}

// Get returns the stored entry for key, if any.
func (c *InMemoryCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.data[key]
	return entry, ok, nil
}

// Set replaces the entry for key. An entry whose FetchedAt is newer than the
// incoming one is kept, so a slow refresh finishing late cannot overwrite fresher data.
func (c *InMemoryCache) Set(ctx context.Context, key string, entry Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.data[key]; ok && cur.FetchedAt.After(entry.FetchedAt) {
		return nil
	}
	c.data[key] = entry
	return nil
}
