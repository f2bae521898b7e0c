package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saqib-21/WellandCanalStatus/internal/cache"
	"github.com/saqib-21/WellandCanalStatus/internal/client"
	"github.com/saqib-21/WellandCanalStatus/internal/models"
	"github.com/saqib-21/WellandCanalStatus/internal/observability"
	"github.com/saqib-21/WellandCanalStatus/internal/parser"
)

// DefaultTTL is how long a fetched source is served from cache.
const DefaultTTL = 20 * time.Second

// ErrUnknownSource is returned for a source key that is not configured.
var ErrUnknownSource = errors.New("unknown source")

// BridgeService resolves bridge statuses per source using a cache-aside policy
// over the upstream status pages.
type BridgeService struct {
	fetcher         client.Fetcher
	cache           cache.Cache
	sources         []models.Source
	ttl             time.Duration
	now             func() time.Time
	stampedeTracker *stampedeTracker
	coalescer       *requestCoalescer // nil if coalescing is disabled
}

// NewBridgeService creates a BridgeService over the given sources, in aggregation order.
// A non-positive ttl uses DefaultTTL.
func NewBridgeService(fetcher client.Fetcher, store cache.Cache, sources []models.Source, ttl time.Duration, coalesce bool) *BridgeService {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	var coalescer *requestCoalescer
	if coalesce {
		coalescer = newRequestCoalescer()
	}
	return &BridgeService{
		fetcher:         fetcher,
		cache:           store,
		sources:         append([]models.Source(nil), sources...),
		ttl:             ttl,
		now:             time.Now,
		stampedeTracker: newStampedeTracker(),
		coalescer:       coalescer,
	}
}

// SetClock replaces the clock used for freshness checks and fetch timestamps.
func (s *BridgeService) SetClock(now func() time.Time) {
	s.now = now
}

// Sources returns the configured sources in aggregation order.
func (s *BridgeService) Sources() []models.Source {
	return append([]models.Source(nil), s.sources...)
}

// Keys returns the configured source keys in aggregation order.
func (s *BridgeService) Keys() []string {
	keys := make([]string, len(s.sources))
	for i, src := range s.sources {
		keys[i] = src.Key
	}
	return keys
}

func (s *BridgeService) source(key string) (models.Source, bool) {
	for _, src := range s.sources {
		if src.Key == key {
			return src, true
		}
	}
	return models.Source{}, false
}

// Get returns the bridge list for one source. A fresh cache entry is served without
// touching the network; otherwise the page is fetched, parsed and stored.
// On fetch failure nothing is cached and the error wraps client.ErrNetwork.
func (s *BridgeService) Get(ctx context.Context, key string) ([]models.BridgeStatus, error) {
	src, ok := s.source(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, key)
	}
	start := time.Now()
	logger := observability.LoggerFromContext(ctx)

	entry, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		logger.Warn("cache get failed, treating as miss", zap.String("source", key), zap.Error(err))
	} else if ok && entry.FreshAt(s.now(), s.ttl) {
		observability.CacheHitsTotal.WithLabelValues(key).Inc()
		logger.Debug("bridges served", zap.String("source", key), zap.Bool("cached", true),
			zap.Duration("age", entry.Age(s.now())), zap.Duration("duration", time.Since(start)))
		return entry.Data, nil
	}
	observability.CacheMissesTotal.WithLabelValues(key).Inc()

	if concurrent := s.stampedeTracker.RecordMiss(key); concurrent > 1 {
		observability.CacheStampedeDetectedTotal.WithLabelValues(key).Inc()
	}
	defer s.stampedeTracker.RecordDone(key)

	logger.Debug("cache miss, fetching upstream", zap.String("source", key))
	data, err := s.resolve(ctx, src)
	if err != nil {
		return nil, err
	}
	logger.Debug("bridges served", zap.String("source", key), zap.Bool("cached", false),
		zap.Int("bridges", len(data)), zap.Duration("duration", time.Since(start)))
	return data, nil
}

// Refresh fetches and stores one source regardless of the cached entry's age.
func (s *BridgeService) Refresh(ctx context.Context, key string) ([]models.BridgeStatus, error) {
	src, ok := s.source(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, key)
	}
	return s.resolve(ctx, src)
}

// GetCombined resolves every source concurrently and concatenates the results in
// configured order. Any source failure fails the whole call.
func (s *BridgeService) GetCombined(ctx context.Context) ([]models.BridgeStatus, error) {
	results := make([][]models.BridgeStatus, len(s.sources))
	var g errgroup.Group
	for i, src := range s.sources {
		g.Go(func() error {
			data, err := s.Get(ctx, src.Key)
			if err != nil {
				return err
			}
			results[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	combined := make([]models.BridgeStatus, 0, total)
	for _, r := range results {
		combined = append(combined, r...)
	}
	return combined, nil
}

// resolve runs a refresh that outlives the caller's cancellation, sharing it with
// concurrent callers when coalescing is enabled.
func (s *BridgeService) resolve(ctx context.Context, src models.Source) ([]models.BridgeStatus, error) {
	bg := context.WithoutCancel(ctx)
	refresh := func() ([]models.BridgeStatus, error) { return s.refresh(bg, src) }

	if s.coalescer == nil {
		return detached(ctx, refresh)
	}
	data, shared, err := s.coalescer.GetOrDo(ctx, src.Key, refresh)
	if shared && err == nil {
		observability.RequestCoalescingHitsTotal.WithLabelValues(src.Key).Inc()
	}
	return data, err
}

// refresh fetches, parses and stores one source. FetchedAt is the time the refresh started.
func (s *BridgeService) refresh(ctx context.Context, src models.Source) ([]models.BridgeStatus, error) {
	logger := observability.LoggerFromContext(ctx)
	startedAt := s.now()

	html, err := s.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		category := string(client.CategorizeError(err))
		observability.UpstreamErrorsTotal.WithLabelValues(src.Key, category).Inc()
		logger.Warn("source refresh failed", zap.String("source", src.Key), zap.String("category", category), zap.Error(err))
		return nil, fmt.Errorf("fetch bridges for %s: %w", src.Key, err)
	}

	data := parser.Parse(html)
	observability.BridgesParsed.WithLabelValues(src.Key).Set(float64(len(data)))
	if len(data) == 0 {
		logger.Warn("no bridges found on status page", zap.String("source", src.Key))
	}

	if err := s.cache.Set(ctx, src.Key, cache.Entry{Data: data, FetchedAt: startedAt}); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
		logger.Warn("cache set failed", zap.String("source", src.Key), zap.Error(err))
	}
	return data, nil
}
