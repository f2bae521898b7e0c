package http

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestInFlightTracker_Count(t *testing.T) {
	var tracker InFlightTracker
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Increment()
		}()
	}
	wg.Wait()
	if got := tracker.Count(); got != 8 {
		t.Fatalf("Count() = %d, want 8", got)
	}
	for i := 0; i < 8; i++ {
		tracker.Decrement()
	}
	if got := tracker.Count(); got != 0 {
		t.Errorf("Count() = %d after decrements, want 0", got)
	}
}

func TestInFlightTracker_WaitForZero(t *testing.T) {
	tests := []struct {
		name     string
		pending  bool
		release  bool
		deadline time.Duration
		wantErr  error
	}{
		{name: "idle returns immediately", deadline: time.Millisecond},
		{name: "drains after release", pending: true, release: true, deadline: time.Second},
		{name: "deadline while busy", pending: true, deadline: 20 * time.Millisecond, wantErr: context.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tracker InFlightTracker
			if tt.pending {
				tracker.Increment()
			}
			if tt.release {
				time.AfterFunc(10*time.Millisecond, tracker.Decrement)
			}
			ctx, cancel := context.WithTimeout(context.Background(), tt.deadline)
			defer cancel()
			err := tracker.WaitForZero(ctx, 2*time.Millisecond)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("WaitForZero() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
