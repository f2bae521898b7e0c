package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/saqib-21/WellandCanalStatus/internal/cache"
	"github.com/saqib-21/WellandCanalStatus/internal/circuitbreaker"
	"github.com/saqib-21/WellandCanalStatus/internal/client"
	"github.com/saqib-21/WellandCanalStatus/internal/config"
	httphandler "github.com/saqib-21/WellandCanalStatus/internal/http"
	"github.com/saqib-21/WellandCanalStatus/internal/lifecycle"
	"github.com/saqib-21/WellandCanalStatus/internal/observability"
	"github.com/saqib-21/WellandCanalStatus/internal/service"
)

// app is the wired service: everything main starts and later shuts down.
type app struct {
	handler      http.Handler
	bridges      *service.BridgeService
	warmer       *cache.Warmer
	warmSchedule cron.Schedule // nil when scheduled warming is off
	memcached    *cache.MemcachedCache
}

func main() {
	overrides, err := config.ParseFlags(os.Args[0], os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "flags: %v\n", err)
		os.Exit(2)
	}

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.LoadWithOverrides(overrides)
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	a, err := buildApp(cfg, logger)
	if err != nil {
		logger.Fatal("startup", zap.Error(err))
	}
	observability.RegisterTrafficGauges(cfg.TrafficWindow)

	if cfg.WarmOnStart {
		warmCtx, warmCancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		if err := a.warmer.Warm(warmCtx); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
	}
	stopWarming := func() {}
	if a.warmSchedule != nil {
		stopWarming = a.warmer.Schedule(context.Background(), a.warmSchedule)
		logger.Info("scheduled cache warming enabled", zap.String("schedule", cfg.WarmSchedule))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.Strings("sources", a.bridges.Keys()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	stopWarming()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if a.memcached != nil {
		if err := a.memcached.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// buildApp wires fetcher, cache backend, service, warmer and router from cfg.
func buildApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	fetcher := client.NewHTTPFetcher(cfg.UpstreamUserAgent, cfg.UpstreamTimeout)
	if cfg.CircuitBreakerEnabled {
		fetcher.EnableCircuitBreakers(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
		}, func(cb *circuitbreaker.CircuitBreaker, from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition(cb.Component(), from.String(), to.String(), int(to))
			logger.Warn("circuit breaker state change",
				zap.String("component", cb.Component()), zap.String("from", from.String()), zap.String("to", to.String()))
		})
		for _, src := range cfg.Sources {
			observability.CircuitBreakerState.WithLabelValues(src.URL).Set(0)
		}
		logger.Info("circuit breakers enabled per source", zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold), zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	a := &app{}
	var store cache.Cache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedRetention, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, fmt.Errorf("memcached cache: %w", err)
		}
		if err := mc.Ping(); err != nil {
			logger.Warn("memcached not reachable at startup; requests will fetch upstream until it is", zap.Error(err))
		}
		a.memcached = mc
		store = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		store = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}

	a.bridges = service.NewBridgeService(fetcher, store, cfg.Sources, cfg.CacheTTL, cfg.CoalesceEnabled)
	a.warmer = cache.NewWarmer(a.bridges, a.bridges.Keys(), logger)
	if cfg.WarmSchedule != "" {
		schedule, err := cache.ParseSchedule(cfg.WarmSchedule)
		if err != nil {
			return nil, err
		}
		a.warmSchedule = schedule
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(a.bridges, logger)
	a.handler = httphandler.NewRouter(handler, logger, httphandler.RouterConfig{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
	})
	return a, nil
}
