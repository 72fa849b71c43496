// Package retry runs fallible operations under exponential backoff.
package retry

import (
	"context"
	"time"

	"sjsage522/listingworker/logger"
	"sjsage522/listingworker/pkg/errors"
)

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep blocks for d, returning early with ctx.Err() when the context ends.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Policy describes how many times an operation is attempted and how long to
// wait between attempts.
type Policy struct {
	Name         string
	Attempts     int
	InitialDelay time.Duration
	Multiplier   float64

	Sleep  SleepFunc
	Logger *logger.Logger
}

// CatalogPolicy is used for catalog page searches.
func CatalogPolicy(initialDelay time.Duration) Policy {
	if initialDelay <= 0 {
		initialDelay = 5 * time.Second
	}
	return Policy{Name: "catalog search", Attempts: 5, InitialDelay: initialDelay, Multiplier: 2}
}

// DetailPolicy is used for detail page fetches.
func DetailPolicy() Policy {
	return Policy{Name: "detail fetch", Attempts: 3, InitialDelay: 2 * time.Second, Multiplier: 2}
}

// Delays returns the waits inserted between attempts when every attempt
// fails transiently.
func (p Policy) Delays() []time.Duration {
	if p.Attempts <= 1 {
		return nil
	}
	delays := make([]time.Duration, 0, p.Attempts-1)
	delay := p.InitialDelay
	for i := 1; i < p.Attempts; i++ {
		delays = append(delays, delay)
		delay = time.Duration(float64(delay) * p.multiplier())
	}
	return delays
}

func (p Policy) multiplier() float64 {
	if p.Multiplier <= 0 {
		return 1
	}
	return p.Multiplier
}

// Do calls op until it succeeds, fails permanently, or the attempts run out.
// The last error is returned unchanged.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	log := p.Logger
	if log == nil {
		log = logger.Nop()
	}

	delay := p.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := op(ctx)
		class := errors.Classify(err)
		if class == errors.ClassSuccess {
			return result, nil
		}
		lastErr = err

		if class == errors.ClassPermanent || attempt == attempts {
			break
		}

		log.Warn().
			Err(err).
			Str("operation", p.Name).
			Int("attempt", attempt).
			Int("attempts", attempts).
			Dur("delay", delay).
			Msg("Retrying after transient failure")

		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
		delay = time.Duration(float64(delay) * p.multiplier())
	}

	return zero, lastErr
}
