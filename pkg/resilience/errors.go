package resilience

import (
	"context"
	"errors"
	"fmt"
)

// Error taxonomy for every guarded network operation. Callers are expected to
// branch with errors.Is rather than string matching.
var (
	// ErrNetworkUnreachable is returned when the reachability probe fails before
	// any attempt is made. It never consumes retry budget.
	ErrNetworkUnreachable = errors.New("network unreachable")

	// ErrTimeout is returned when a single attempt loses the race against its
	// per-attempt timer.
	ErrTimeout = errors.New("operation timed out")

	// ErrProviderRejected marks a terminal rejection (bad credentials, rate
	// limit). The guard surfaces it immediately and never retries it.
	ErrProviderRejected = errors.New("provider rejected request")

	// ErrProfileFetchFailed degrades the profile, never the session.
	ErrProfileFetchFailed = errors.New("profile fetch failed")

	// ErrCacheCorrupted means a persisted record could not be parsed. The cache
	// purges the entry and reports a miss; this error is for logging only.
	ErrCacheCorrupted = errors.New("cached record corrupted")

	// ErrCircuitOpen is returned without any network I/O while a class breaker
	// is open. It is user-actionable ("too many failed attempts, try again
	// shortly") and distinct from ordinary failures.
	ErrCircuitOpen = errors.New("too many failed attempts, try again shortly")

	// ErrCancelled is returned when the caller's context is cancelled. It is
	// never surfaced to end users.
	ErrCancelled = errors.New("operation cancelled")
)

// Rejected wraps a provider-side terminal failure so the guard can recognize it
// and skip the retry loop.
func Rejected(reason string) error {
	return fmt.Errorf("%w: %s", ErrProviderRejected, reason)
}

// classify maps low-level context errors onto the taxonomy.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	default:
		return err
	}
}
