// Package resilience wraps fallible remote calls (embedding, extraction) with
// a bounded, jittered exponential-backoff retry policy.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pkolbe/ontograph-go/internal/schema"
)

// Policy configures the retry schedule. Delays grow as base * 2^attempt,
// each independently randomized by the jitter factor to avoid retry storms
// across concurrently retrying callers.
type Policy struct {
	Base       time.Duration
	MaxRetries int
	Jitter     float64
}

// DefaultPolicy returns the standard schedule: 1s base, 3 retries
// (at most 4 total attempts), 0.5 jitter.
func DefaultPolicy() Policy {
	return Policy{Base: time.Second, MaxRetries: 3, Jitter: 0.5}
}

// normalized fills zero values with defaults.
func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.Base <= 0 {
		p.Base = def.Base
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = def.MaxRetries
	}
	if p.Jitter <= 0 {
		p.Jitter = def.Jitter
	}
	return p
}

// ErrExhausted matches any ExhaustedError via errors.Is.
var ErrExhausted = errors.New("resilience exhausted")

// ExhaustedError is the terminal error surfaced when the transient-failure
// retry budget runs out. Cause carries the last underlying failure.
type ExhaustedError struct {
	Attempts int
	Cause    error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("resilience exhausted after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *ExhaustedError) Unwrap() error { return e.Cause }

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// permanentError marks a failure that must never be retried.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as non-retryable: Do propagates it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// retryable reports whether an error is a transient failure. Schema
// validation errors and explicitly marked permanent errors are not.
func retryable(err error) bool {
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	var validation *schema.ValidationError
	return !errors.As(err, &validation)
}

// Do runs op under the policy's retry schedule. Transient failures are
// retried up to MaxRetries times with jittered exponential backoff; the
// pending delay is cancelled promptly when ctx is done. Non-transient
// failures propagate immediately; an exhausted budget surfaces an
// ExhaustedError carrying the last cause.
func Do[T any](ctx context.Context, policy Policy, name string, op func(context.Context) (T, error)) (T, error) {
	var result T
	var last error
	attempts := 0

	p := policy.normalized()

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.Base
	expo.Multiplier = 2.0
	expo.RandomizationFactor = p.Jitter
	expo.MaxInterval = p.Base << uint(p.MaxRetries+1)
	expo.MaxElapsedTime = 0
	expo.Reset()

	bo := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(p.MaxRetries)), ctx)

	err := backoff.RetryNotify(func() error {
		attempts++
		v, opErr := op(ctx)
		if opErr != nil {
			last = opErr
			if !retryable(opErr) {
				return backoff.Permanent(opErr)
			}
			return opErr
		}
		result = v
		return nil
	}, bo, func(err error, delay time.Duration) {
		slog.Debug("transient failure, backing off",
			"op", name, "attempt", attempts, "delay_ms", delay.Milliseconds(), "error", err)
	})

	if err == nil {
		return result, nil
	}

	// External cancellation: the owning workflow moved on, don't dress the
	// error up as exhaustion.
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return result, err
	}

	if !retryable(err) {
		return result, err
	}

	slog.Warn("retry budget exhausted", "op", name, "attempts", attempts, "error", last)
	return result, &ExhaustedError{Attempts: attempts, Cause: last}
}
