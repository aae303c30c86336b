package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"counseling-portal-be/internal/pkg/logger"
)

// Options tunes the guard. One Options set is shared by every operation class
// of a Guard instance; the breaker still tracks each class independently.
type Options struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	BackoffMultiplier float64
	PerAttemptTimeout time.Duration
	CircuitCooldown   time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 3
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = 500 * time.Millisecond
	}
	if o.BackoffMultiplier < 1 {
		o.BackoffMultiplier = 2
	}
	if o.PerAttemptTimeout <= 0 {
		o.PerAttemptTimeout = 8 * time.Second
	}
	if o.CircuitCooldown <= 0 {
		o.CircuitCooldown = 30 * time.Second
	}
	return o
}

// Guard wraps any network call with the full resilience policy: reachability
// pre-check, per-attempt timeout race, exponential backoff, and the per-class
// circuit breaker.
type Guard struct {
	opts    Options
	breaker *Breaker
	probe   ReachabilityProbe
	logger  logger.ILogger

	// sleep is injectable so tests do not wait out real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewGuard(opts Options, breaker *Breaker, probe ReachabilityProbe, log logger.ILogger) *Guard {
	return &Guard{
		opts:    opts.withDefaults(),
		breaker: breaker,
		probe:   probe,
		logger:  log,
		sleep:   sleepCtx,
	}
}

// Breaker exposes the underlying breaker for subscriptions and explicit resets.
func (g *Guard) Breaker() *Breaker {
	return g.breaker
}

// Do runs fn under the guard policy for the given operation class.
//
//  1. While the class circuit is open, fail immediately with ErrCircuitOpen;
//     no network I/O, no budget consumed.
//  2. Reachability pre-check; unreachable fails fast with ErrNetworkUnreachable
//     and does not count as an attempt.
//  3. Race fn against the per-attempt timeout; whichever settles first wins.
//  4. Success resets the class. Failure counts an attempt, backs off
//     InitialDelay * Multiplier^(attempt-1), and retries until the budget trips
//     the circuit.
//
// Terminal provider rejections (ErrProviderRejected) surface immediately and
// leave the breaker untouched: retrying bad credentials wastes budget and
// risks rate limiting.
func (g *Guard) Do(ctx context.Context, class string, fn func(ctx context.Context) error) error {
	if err := g.breaker.Allow(class); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return classify(err)
		}

		if g.probe != nil && !g.probe.Reachable(ctx) {
			g.logger.Warn("Guard", "Reachability probe failed, skipping attempt", map[string]interface{}{"class": class})
			return ErrNetworkUnreachable
		}

		err := g.attempt(ctx, fn)
		if err == nil {
			g.breaker.RecordSuccess(class)
			return nil
		}
		if errors.Is(err, ErrCancelled) {
			return err
		}
		if errors.Is(err, ErrProviderRejected) {
			return err
		}

		attempts, opened := g.breaker.RecordFailure(class, err)
		if opened || attempts >= g.opts.MaxAttempts {
			return err
		}

		delay := g.backoffDelay(attempts)
		g.logger.Debug("Guard", "Attempt failed, backing off", map[string]interface{}{
			"class":    class,
			"attempt":  attempts,
			"delay_ms": delay.Milliseconds(),
			"error":    err.Error(),
		})
		if serr := g.sleep(ctx, delay); serr != nil {
			return classify(serr)
		}
	}
}

// attempt races fn against the per-attempt timer. A result that arrives after
// the race is lost is discarded, never applied.
func (g *Guard) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, g.opts.PerAttemptTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(attemptCtx)
	}()

	select {
	case err := <-done:
		return classify(err)
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			// The parent settled first. Its deadline expiring is a timeout;
			// only an explicit cancel means the caller went away.
			return classify(err)
		}
		return fmt.Errorf("%w: attempt exceeded %s", ErrTimeout, g.opts.PerAttemptTimeout)
	}
}

func (g *Guard) backoffDelay(attempt int) time.Duration {
	factor := math.Pow(g.opts.BackoffMultiplier, float64(attempt-1))
	return time.Duration(float64(g.opts.InitialDelay) * factor)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
