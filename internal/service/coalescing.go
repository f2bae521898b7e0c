package service

import (
	"context"
	"sync"

	"github.com/saqib-21/WellandCanalStatus/internal/models"
)

// inFlightRefresh is one source refresh that several callers may wait for.
type inFlightRefresh struct {
	done   chan struct{}
	result []models.BridgeStatus
	err    error
}

// requestCoalescer collapses concurrent refreshes of the same source into one upstream fetch.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightRefresh
}

func newRequestCoalescer() *requestCoalescer {
	return &requestCoalescer{inFlight: make(map[string]*inFlightRefresh)}
}

// GetOrDo joins the refresh in flight for key, or starts fn in its own goroutine when none is.
// fn always runs to completion; ctx only bounds how long this caller waits for it.
// shared reports whether the caller joined a refresh started by someone else.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func() ([]models.BridgeStatus, error)) (result []models.BridgeStatus, shared bool, err error) {
	rc.mu.Lock()
	req, shared := rc.inFlight[key]
	if !shared {
		req = &inFlightRefresh{done: make(chan struct{})}
		rc.inFlight[key] = req
		go func() {
			req.result, req.err = fn()
			rc.cleanup(key)
			close(req.done)
		}()
	}
	rc.mu.Unlock()

	select {
	case <-req.done:
		return req.result, shared, req.err
	case <-ctx.Done():
		return nil, shared, ctx.Err()
	}
}

// cleanup removes the in-flight refresh for key so the next miss starts a new one.
func (rc *requestCoalescer) cleanup(key string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	delete(rc.inFlight, key)
}

// detached runs fn in its own goroutine and waits for it or for ctx, whichever comes first.
// Used when coalescing is disabled so an issued fetch still completes.
func detached(ctx context.Context, fn func() ([]models.BridgeStatus, error)) ([]models.BridgeStatus, error) {
	type outcome struct {
		data []models.BridgeStatus
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		data, err := fn()
		ch <- outcome{data, err}
	}()
	select {
	case o := <-ch:
		return o.data, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
