package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const keyPrefix = "bridges:"

// MemcachedCache implements Cache using memcached. Lets several replicas share one
// scrape per TTL window.
type MemcachedCache struct {
	client    *memcache.Client
	retention time.Duration
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). retention is how long
// memcached keeps an entry; it should exceed the freshness TTL since freshness is
// judged from Entry.FetchedAt. timeout and maxIdleConns use package defaults if zero.
func NewMemcachedCache(addrs string, retention, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client, retention: retention}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedCache) key(k string) string {
	return keyPrefix + k
}

// Get implements Cache.Get. Returns false, nil on cache miss; false, err on error.
func (c *MemcachedCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	if ctx.Err() != nil {
		return Entry{}, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	entry, err := decodeEntry(item.Value)
	if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

// Set implements Cache.Set with the same newer-wins rule as InMemoryCache,
// enforced through compare-and-swap.
func (c *MemcachedCache) Set(ctx context.Context, key string, entry Entry) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	item, err := c.client.Get(c.key(key))
	switch {
	case errors.Is(err, memcache.ErrCacheMiss):
		err = c.client.Add(c.newItem(key, raw))
		if errors.Is(err, memcache.ErrNotStored) {
			// Another writer added it first; that write is at least as fresh.
			return nil
		}
		return err
	case err != nil:
		return err
	}

	if cur, decodeErr := decodeEntry(item.Value); decodeErr == nil && cur.FetchedAt.After(entry.FetchedAt) {
		return nil
	}
	item.Value = raw
	item.Expiration = c.expiration()
	err = c.client.CompareAndSwap(item)
	if errors.Is(err, memcache.ErrCASConflict) || errors.Is(err, memcache.ErrNotStored) {
		return nil
	}
	return err
}

func (c *MemcachedCache) newItem(key string, raw []byte) *memcache.Item {
	return &memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: c.expiration(),
	}
}

func (c *MemcachedCache) expiration() int32 {
	expSec := int32(c.retention.Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 3600
	}
	return expSec
}

func decodeEntry(raw []byte) (Entry, error) {
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
