// Package lifecycle holds the process-wide draining flag read by the health endpoints.
package lifecycle

import "sync/atomic"

var shuttingDown atomic.Bool

// SetShuttingDown sets the draining flag. main sets it on SIGTERM/SIGINT before
// shutting the server down.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether /health and /healthz should answer 503.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}
