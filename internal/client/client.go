package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/saqib-21/WellandCanalStatus/internal/circuitbreaker"
	"github.com/saqib-21/WellandCanalStatus/internal/observability"
)

// Fetcher retrieves the raw HTML of an upstream status page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// ErrNetwork is wrapped by every fetch failure: connection errors, timeouts and non-2xx responses.
var ErrNetwork = errors.New("network error")

const (
	// DefaultUserAgent identifies requests as a desktop browser; the upstream serves bots differently.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
	acceptHTML       = "text/html,application/xhtml+xml"
	maxBodyBytes     = 5 << 20
)

// HTTPFetcher fetches pages over HTTP with a browser-like request signature. No retries.
type HTTPFetcher struct {
	userAgent string
	client    *http.Client

	// Breakers are per URL so one failing status page never blocks another.
	breakerMu       sync.Mutex
	breakerCfg      *circuitbreaker.Config
	onBreakerChange func(cb *circuitbreaker.CircuitBreaker, from, to circuitbreaker.State)
	breakers        map[string]*circuitbreaker.CircuitBreaker
}

// NewHTTPFetcher returns an HTTPFetcher. An empty userAgent falls back to DefaultUserAgent.
func NewHTTPFetcher(userAgent string, timeout time.Duration) *HTTPFetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTPFetcher{
		userAgent: userAgent,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// EnableCircuitBreakers gives every upstream URL its own breaker built from cfg, with
// Component set to the URL. onChange, when non-nil, is told about each breaker's transitions.
func (f *HTTPFetcher) EnableCircuitBreakers(cfg circuitbreaker.Config, onChange func(cb *circuitbreaker.CircuitBreaker, from, to circuitbreaker.State)) {
	f.breakerMu.Lock()
	defer f.breakerMu.Unlock()
	f.breakerCfg = &cfg
	f.onBreakerChange = onChange
	f.breakers = make(map[string]*circuitbreaker.CircuitBreaker)
}

// breakerFor returns the breaker guarding url, or nil when breakers are off.
func (f *HTTPFetcher) breakerFor(url string) *circuitbreaker.CircuitBreaker {
	f.breakerMu.Lock()
	defer f.breakerMu.Unlock()
	if f.breakerCfg == nil {
		return nil
	}
	if cb, ok := f.breakers[url]; ok {
		return cb
	}
	cfg := *f.breakerCfg
	cfg.Component = url
	var cb *circuitbreaker.CircuitBreaker
	if notify := f.onBreakerChange; notify != nil {
		cfg.OnStateChange = func(from, to circuitbreaker.State) { notify(cb, from, to) }
	}
	cb = circuitbreaker.New(cfg)
	f.breakers[url] = cb
	return cb
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	breaker := f.breakerFor(url)
	if breaker == nil {
		return f.fetch(ctx, url)
	}
	var body string
	err := breaker.Call(ctx, func() error {
		var fetchErr error
		body, fetchErr = f.fetch(ctx, url)
		return fetchErr
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		observability.UpstreamFetchTotal.WithLabelValues("circuit_open").Inc()
		return "", fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	return body, err
}

func (f *HTTPFetcher) fetch(ctx context.Context, url string) (string, error) {
	start := time.Now()

	req, err := f.buildRequest(ctx, url)
	if err != nil {
		observability.UpstreamFetchTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		observability.UpstreamFetchTotal.WithLabelValues("error").Inc()
		observability.UpstreamFetchDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("%w: request timeout: %w", ErrNetwork, err)
		}
		return "", fmt.Errorf("%w: http request failed: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.UpstreamFetchTotal.WithLabelValues(status).Inc()
	observability.UpstreamFetchDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: HTTP %d from %s", ErrNetwork, resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read response body: %w", ErrNetwork, err)
	}
	return string(body), nil
}

func (f *HTTPFetcher) buildRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", acceptHTML)

	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

func extractCorrelationID(ctx context.Context) string {
	if corrID, ok := observability.CorrelationIDFromContext(ctx); ok {
		return corrID
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == http.StatusTooManyRequests {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
