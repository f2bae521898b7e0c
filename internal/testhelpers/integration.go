//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/saqib-21/WellandCanalStatus/internal/cache"
	"github.com/saqib-21/WellandCanalStatus/internal/client"
	"github.com/saqib-21/WellandCanalStatus/internal/models"
	"github.com/saqib-21/WellandCanalStatus/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test unless SEAWAY_LIVE=1, since it scrapes the real status pages.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	if os.Getenv("SEAWAY_LIVE") != "1" {
		t.Skip("SEAWAY_LIVE not set, skipping live upstream test")
	}
	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}
	return IntegrationTestConfig{
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

// SetupIntegrationService creates a service against the live status pages.
// Returns the service, its cache and a cleanup function.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.BridgeService, cache.Cache, func()) {
	fetcher := client.NewHTTPFetcher(client.DefaultUserAgent, 10*time.Second)

	var store cache.Cache = cache.NewInMemoryCache()
	cleanup := func() {}
	if cfg.CacheBackend == "memcached" {
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, time.Hour, 500*time.Millisecond, 2)
		if err == nil && mc.Ping() == nil {
			store = mc
			cleanup = func() { _ = mc.Close() }
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("Memcached not available, using in-memory cache")
		}
	}

	return service.NewBridgeService(fetcher, store, models.DefaultSources(), service.DefaultTTL, true), store, cleanup
}
