package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saqib-21/WellandCanalStatus/internal/models"
	"github.com/saqib-21/WellandCanalStatus/internal/observability"
)

// SourceRefresher is implemented by the service layer to fetch one source and store it.
// Used by Warmer to avoid a circular dependency on the service package.
type SourceRefresher interface {
	Refresh(ctx context.Context, key string) ([]models.BridgeStatus, error)
}

// Warmer pre-populates the cache so client polls rarely wait on the upstream.
type Warmer struct {
	fetcher SourceRefresher
	keys    []string
	logger  *zap.Logger
}

// NewWarmer creates a Warmer for the given source keys.
func NewWarmer(fetcher SourceRefresher, keys []string, logger *zap.Logger) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Warmer{fetcher: fetcher, keys: keys, logger: logger}
}

// Warm refreshes every source concurrently. Returns the joined errors of failed sources.
func (w *Warmer) Warm(ctx context.Context) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Debug("warming cache", zap.Int("sources", len(w.keys)))

	var wg sync.WaitGroup
	errCh := make(chan error, len(w.keys))
	for _, key := range w.keys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.fetcher.Refresh(ctx, key); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", key, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Debug("cache warming complete", zap.Int("sources", len(w.keys)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return errors.Join(errs...)
	}
	return nil
}

// Schedule starts warming on the given schedule until ctx is done.
// The returned function stops the scheduler and waits for a running warm to finish.
func (w *Warmer) Schedule(ctx context.Context, schedule cron.Schedule) (stop func()) {
	scheduler := cron.New()
	scheduler.Schedule(schedule, cron.FuncJob(func() {
		if err := w.Warm(ctx); err != nil {
			w.logger.Warn("scheduled cache warm failed", zap.Error(err))
		}
	}))
	scheduler.Start()

	done := make(chan struct{})
	var once sync.Once
	stop = func() {
		once.Do(func() {
			close(done)
			<-scheduler.Stop().Done()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()
	return stop
}

// ParseSchedule accepts either a Go duration ("15s") or a standard five-field cron expression.
func ParseSchedule(spec string) (cron.Schedule, error) {
	if d, err := time.ParseDuration(spec); err == nil {
		if d <= 0 {
			return nil, fmt.Errorf("warm schedule interval must be positive, got %s", d)
		}
		return cron.Every(d), nil
	}
	s, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse warm schedule %q: %w", spec, err)
	}
	return s, nil
}
