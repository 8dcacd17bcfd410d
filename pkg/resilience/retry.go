// Package resilience retries calls to external services (the event broker,
// the run-history database) with exponential backoff and jitter.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Backoff controls Retry.
type Backoff struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
}

// DefaultBackoff is three attempts starting at 100ms.
func DefaultBackoff() Backoff {
	return Backoff{
		MaxAttempts:    3,
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

func (b Backoff) withDefaults() Backoff {
	d := DefaultBackoff()
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = d.MaxAttempts
	}
	if b.InitialDelay <= 0 {
		b.InitialDelay = d.InitialDelay
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = d.MaxDelay
	}
	if b.Multiplier <= 0 {
		b.Multiplier = d.Multiplier
	}
	if b.JitterFraction < 0 {
		b.JitterFraction = 0
	}
	return b
}

type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err: err}
}

// Retry calls fn until it succeeds, returns a Permanent error, ctx ends, or
// b.MaxAttempts calls failed. The last error is wrapped in the result.
func Retry(ctx context.Context, name string, b Backoff, fn func(ctx context.Context) error) error {
	b = b.withDefaults()
	logger := slog.Default().With("component", "retry", "operation", name)
	var lastErr error
	for attempt := 1; attempt <= b.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		var p permanent
		if errors.As(lastErr, &p) {
			return p.err
		}
		if attempt == b.MaxAttempts {
			break
		}
		delay := b.delay(attempt)
		logger.Warn("operation failed, retrying", "attempt", attempt, "max_attempts", b.MaxAttempts, "error", lastErr, "next_delay", delay)
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%s: retry aborted: %w", name, ctx.Err())
		}
	}
	return fmt.Errorf("%s: all %d attempts failed: %w", name, b.MaxAttempts, lastErr)
}

func (b Backoff) delay(attempt int) time.Duration {
	d := float64(b.InitialDelay) * math.Pow(b.Multiplier, float64(attempt-1))
	d += d * b.JitterFraction * (2*rand.Float64() - 1)
	if d > float64(b.MaxDelay) {
		d = float64(b.MaxDelay)
	}
	if d < 0 {
		d = float64(b.InitialDelay)
	}
	return time.Duration(d)
}
