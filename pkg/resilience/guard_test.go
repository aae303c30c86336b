package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"counseling-portal-be/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProbe struct {
	reachable bool
	calls     int
}

func (p *stubProbe) Reachable(ctx context.Context) bool {
	p.calls++
	return p.reachable
}

// newTestGuard builds a guard with an instant sleep that records the delays it
// was asked for.
func newTestGuard(opts Options, probe ReachabilityProbe) (*Guard, *Breaker, *[]time.Duration) {
	b := NewBreaker(opts.MaxAttempts, opts.CircuitCooldown, nil, nil, logger.NewNopLogger())
	g := NewGuard(opts, b, probe, logger.NewNopLogger())

	var delays []time.Duration
	g.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return g, b, &delays
}

func TestGuardRetriesThenOpensCircuit(t *testing.T) {
	g, b, delays := newTestGuard(Options{
		MaxAttempts:       3,
		InitialDelay:      100 * time.Millisecond,
		BackoffMultiplier: 2,
		PerAttemptTimeout: time.Second,
		CircuitCooldown:   time.Hour,
	}, nil)

	calls := 0
	err := g.Do(context.Background(), "session-check", func(ctx context.Context) error {
		calls++
		return errors.New("connection refused")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *delays)
	assert.True(t, b.State("session-check").CircuitOpen)
}

func TestGuardBackoffGrowsExponentially(t *testing.T) {
	g, _, delays := newTestGuard(Options{
		MaxAttempts:       4,
		InitialDelay:      50 * time.Millisecond,
		BackoffMultiplier: 3,
		PerAttemptTimeout: time.Second,
		CircuitCooldown:   time.Hour,
	}, nil)

	_ = g.Do(context.Background(), "profile-fetch", func(ctx context.Context) error {
		return errors.New("boom")
	})

	assert.Equal(t, []time.Duration{
		50 * time.Millisecond,
		150 * time.Millisecond,
		450 * time.Millisecond,
	}, *delays)
}

func TestGuardOpenCircuitFailsWithoutCalling(t *testing.T) {
	g, _, _ := newTestGuard(Options{
		MaxAttempts:     2,
		CircuitCooldown: time.Hour,
	}, nil)

	_ = g.Do(context.Background(), "session-check", func(ctx context.Context) error {
		return errors.New("boom")
	})

	calls := 0
	err := g.Do(context.Background(), "session-check", func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 0, calls)
}

func TestGuardCooldownReclosesCircuit(t *testing.T) {
	g, b, _ := newTestGuard(Options{
		MaxAttempts:     1,
		CircuitCooldown: 30 * time.Second,
	}, nil)

	openedAt := time.Now()
	b.now = func() time.Time { return openedAt }

	_ = g.Do(context.Background(), "session-check", func(ctx context.Context) error {
		return errors.New("boom")
	})
	assert.ErrorIs(t, g.Do(context.Background(), "session-check", func(ctx context.Context) error {
		return nil
	}), ErrCircuitOpen)

	b.now = func() time.Time { return openedAt.Add(31 * time.Second) }

	err := g.Do(context.Background(), "session-check", func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, err)
	assert.False(t, b.State("session-check").CircuitOpen)
}

func TestGuardUnreachableFailsFastWithoutBudget(t *testing.T) {
	probe := &stubProbe{reachable: false}
	g, b, _ := newTestGuard(Options{
		MaxAttempts:     3,
		CircuitCooldown: time.Hour,
	}, probe)

	calls := 0
	err := g.Do(context.Background(), "session-check", func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, ErrNetworkUnreachable)
	assert.Equal(t, 0, calls)
	// An offline skip never burns retry budget.
	assert.Equal(t, 0, b.State("session-check").Attempts)
}

func TestGuardTimesOutSlowAttempt(t *testing.T) {
	g, _, _ := newTestGuard(Options{
		MaxAttempts:       1,
		PerAttemptTimeout: 20 * time.Millisecond,
		CircuitCooldown:   time.Hour,
	}, nil)

	err := g.Do(context.Background(), "session-check", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.ErrorIs(t, err, ErrTimeout)
}

func TestGuardLateResultIsDiscarded(t *testing.T) {
	g, _, _ := newTestGuard(Options{
		MaxAttempts:       1,
		PerAttemptTimeout: 10 * time.Millisecond,
		CircuitCooldown:   time.Hour,
	}, nil)

	settled := make(chan struct{})
	err := g.Do(context.Background(), "session-check", func(ctx context.Context) error {
		// Ignores cancellation and keeps running past the timer.
		time.Sleep(50 * time.Millisecond)
		close(settled)
		return nil
	})

	assert.ErrorIs(t, err, ErrTimeout)

	// The straggler finishes later without flipping the outcome.
	select {
	case <-settled:
	case <-time.After(time.Second):
		t.Fatal("straggler goroutine never finished")
	}
}

func TestGuardRejectionBypassesRetry(t *testing.T) {
	g, b, delays := newTestGuard(Options{
		MaxAttempts:     3,
		CircuitCooldown: time.Hour,
	}, nil)

	calls := 0
	err := g.Do(context.Background(), "session-check", func(ctx context.Context) error {
		calls++
		return Rejected("invalid credentials")
	})

	assert.ErrorIs(t, err, ErrProviderRejected)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *delays)
	// A rejection is a provider verdict, not a provider outage.
	assert.Equal(t, 0, b.State("session-check").Attempts)
}

func TestGuardSuccessResetsClass(t *testing.T) {
	g, b, _ := newTestGuard(Options{
		MaxAttempts:     3,
		CircuitCooldown: time.Hour,
	}, nil)

	calls := 0
	err := g.Do(context.Background(), "session-check", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 0, b.State("session-check").Attempts)
}

func TestGuardExpiredParentDeadlineIsTimeout(t *testing.T) {
	g, _, _ := newTestGuard(Options{
		MaxAttempts:       3,
		PerAttemptTimeout: time.Second,
		CircuitCooldown:   time.Hour,
	}, nil)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	calls := 0
	err := g.Do(ctx, "session-check", func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 0, calls)
}

func TestGuardParentDeadlineDuringAttemptIsTimeout(t *testing.T) {
	// The per-attempt timer is generous; the caller's own deadline fires
	// first. That is still a timeout, not the caller going away.
	g, _, _ := newTestGuard(Options{
		MaxAttempts:       3,
		PerAttemptTimeout: 5 * time.Second,
		CircuitCooldown:   time.Hour,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := g.Do(ctx, "session-check", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrCancelled)
}

func TestGuardHonorsCallerCancellation(t *testing.T) {
	g, _, _ := newTestGuard(Options{
		MaxAttempts:     3,
		CircuitCooldown: time.Hour,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := g.Do(ctx, "session-check", func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("boom")
	})

	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 1, calls)
}
