// Package readiness blocks startup until a dependency answers.
package readiness

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultAttempts = 30
	DefaultInterval = time.Second
)

// Check probes one dependency
type Check func(ctx context.Context) error

// Waiter retries checks a bounded number of times with a fixed sleep
type Waiter struct {
	Attempts int
	Interval time.Duration
	Logger   *slog.Logger
}

// New returns a Waiter using DefaultAttempts and DefaultInterval
func New(logger *slog.Logger) *Waiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Waiter{Attempts: DefaultAttempts, Interval: DefaultInterval, Logger: logger}
}

// Wait calls check until it succeeds, the attempts run out, or ctx ends.
// The returned error wraps the last failure.
func (w *Waiter) Wait(ctx context.Context, name string, check Check) error {
	attempts := w.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		if lastErr = check(ctx); lastErr == nil {
			if i > 1 {
				w.Logger.Info("dependency ready", "name", name, "attempts", i)
			}
			return nil
		}
		w.Logger.Warn("dependency not ready", "name", name, "attempt", i, "of", attempts, "err", lastErr)

		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s not ready: %w", name, ctx.Err())
		case <-time.After(w.Interval):
		}
	}

	return fmt.Errorf("%s not ready after %d attempts: %w", name, attempts, lastErr)
}
