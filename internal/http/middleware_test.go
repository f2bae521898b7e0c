package http

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/saqib-21/WellandCanalStatus/internal/models"
	"github.com/saqib-21/WellandCanalStatus/internal/observability"
	"github.com/saqib-21/WellandCanalStatus/internal/traffic"
)

func TestCorrelationIDMiddleware(t *testing.T) {
	var seen string
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		seen, _ = observability.CorrelationIDFromContext(r.Context())
	})

	t.Run("propagates incoming id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("X-Correlation-ID", "abc-123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("X-Correlation-ID"); got != "abc-123" {
			t.Errorf("response X-Correlation-ID = %q, want abc-123", got)
		}
		if seen != "abc-123" {
			t.Errorf("context correlation id = %q, want abc-123", seen)
		}
	})

	t.Run("generates id when absent", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

		got := w.Header().Get("X-Correlation-ID")
		if got == "" || got != seen {
			t.Errorf("generated id = %q, context id = %q, want equal and non-empty", got, seen)
		}
	})
}

// TestMiddleware_MetricsUseRouteTemplate verifies that request metrics are labelled with
// the route template rather than the raw path.
func TestMiddleware_MetricsUseRouteTemplate(t *testing.T) {
	env := newTestEnv(t, nil, RouterConfig{})
	counter := observability.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/bridges/{source}", "2xx")
	before := testutil.ToFloat64(counter)

	env.get("/api/bridges/niagara")
	env.get("/api/bridges/portcolborne")

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("httpRequestsTotal delta = %v, want 2", got)
	}
	if got := InFlightCount(); got != 0 {
		t.Errorf("InFlightCount() after requests = %d, want 0", got)
	}
}

// TestMiddleware_TrafficOutcomes verifies that API responses feed the traffic windows:
// success, server error and denial are each counted once.
func TestMiddleware_TrafficOutcomes(t *testing.T) {
	traffic.Reset()
	t.Cleanup(traffic.Reset)
	env := newTestEnv(t, nil, RouterConfig{})
	env.upstream.FailWith(models.SourcePortColborne, http.StatusServiceUnavailable)

	env.get("/api/bridges/niagara")
	env.get("/api/bridges/portcolborne")
	env.get("/healthz")

	errs, total := traffic.ErrorRate(time.Minute)
	if errs != 1 || total != 2 {
		t.Errorf("ErrorRate() = (%d, %d), want (1, 2)", errs, total)
	}
}

// TestMiddleware_InFlightDuringRequest verifies that a slow request is counted in flight
// until it completes.
func TestMiddleware_InFlightDuringRequest(t *testing.T) {
	release := make(chan struct{})
	router := mux.NewRouter()
	router.Use(MetricsMiddleware)
	router.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) { <-release })

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/slow", nil))
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for InFlightCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := InFlightCount(); got != 1 {
		t.Fatalf("InFlightCount() = %d, want 1", got)
	}
	close(release)
	<-done

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := WaitForInFlight(ctx, time.Millisecond); err != nil {
		t.Errorf("WaitForInFlight() error = %v", err)
	}
}

// TestTimeoutMiddleware_DetachedRefreshCompletes verifies that a request timing out
// returns an error while the refresh it issued still populates the cache.
func TestTimeoutMiddleware_DetachedRefreshCompletes(t *testing.T) {
	env := newTestEnv(t, nil, RouterConfig{RequestTimeout: 20 * time.Millisecond})
	env.upstream.SetDelay(100 * time.Millisecond)

	w := env.get("/api/bridges/niagara")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 on timeout", w.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok, _ := env.store.Get(context.Background(), models.SourceNiagara); ok {
			env.upstream.SetDelay(0)
			if w := env.get("/api/bridges/niagara"); w.Code != http.StatusOK {
				t.Errorf("status after refresh = %d, want 200", w.Code)
			}
			if got := env.upstream.Hits(models.SourceNiagara); got != 1 {
				t.Errorf("upstream hits = %d, want 1", got)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed-out request's refresh never populated the cache")
}

func TestTimeoutMiddleware_SetsDeadline(t *testing.T) {
	var hasDeadline bool
	h := TimeoutMiddleware(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !hasDeadline {
		t.Error("request context has no deadline")
	}
}

// TestRateLimitMiddleware_Returns429WhenExceeded verifies that requests beyond the burst
// get 429 with an {"error"} body and are counted as denials.
func TestRateLimitMiddleware_Returns429WhenExceeded(t *testing.T) {
	traffic.Reset()
	t.Cleanup(traffic.Reset)
	env := newTestEnv(t, nil, RouterConfig{Limiter: rate.NewLimiter(rate.Limit(0.001), 2)})
	deniedBefore := testutil.ToFloat64(observability.RateLimitDeniedTotal)

	codes := make([]int, 3)
	for i := range codes {
		codes[i] = env.get("/api/bridges/niagara").Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("first two statuses = %v, want 200", codes[:2])
	}
	w := env.get("/api/bridges/niagara")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil || body["error"] == "" {
		t.Errorf("429 body = %v (err %v), want {\"error\": ...}", body, err)
	}
	if got := testutil.ToFloat64(observability.RateLimitDeniedTotal) - deniedBefore; got != 2 {
		t.Errorf("rateLimitDeniedTotal delta = %v, want 2", got)
	}
	if got := traffic.DenialCount(time.Minute); got != 2 {
		t.Errorf("DenialCount() = %d, want 2", got)
	}

	if w := env.get("/healthz"); w.Code != http.StatusOK {
		t.Errorf("health status under rate limit = %d, want 200", w.Code)
	}
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	called := false
	h := RateLimitMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("handler not called with nil limiter")
	}
}

// TestGzipMiddleware_CompressesAPIResponses verifies that large API responses are gzip
// encoded when the client accepts it.
func TestGzipMiddleware_CompressesAPIResponses(t *testing.T) {
	env := newTestEnv(t, nil, RouterConfig{})
	var page strings.Builder
	page.WriteString("<html><body>\n")
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&page, "<p>Test Road %d (Bridge %d)</p>\n<p>Available</p>\n", i, i)
	}
	page.WriteString("</body></html>")
	env.upstream.SetPage(models.SourceNiagara, page.String())

	req := httptest.NewRequest(http.MethodGet, "/api/bridges/niagara", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", got)
	}
	zr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read gzip body: %v", err)
	}
	var resp struct {
		Bridges []models.BridgeStatus `json:"bridges"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Bridges) != 60 {
		t.Errorf("got %d bridges, want 60", len(resp.Bridges))
	}
}
