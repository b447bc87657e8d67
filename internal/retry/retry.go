// internal/retry/retry.go
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds a retried operation. Delays grow exponentially from
// BaseDelay and are capped at MaxDelay. Jitter is the randomization factor
// (0 gives exact delays).
type Policy struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Jitter      float64       `mapstructure:"jitter"`
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
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

// Option customizes Do.
type Option func(*options)

type options struct {
	sleep  Sleeper
	notify func(attempt int, err error, next time.Duration)
}

// WithSleeper replaces the sleeper, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(o *options) {
		if s != nil {
			o.sleep = s
		}
	}
}

// WithNotify registers a callback invoked before each wait.
func WithNotify(fn func(attempt int, err error, next time.Duration)) Option {
	return func(o *options) { o.notify = fn }
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}

// ErrExhausted wraps the last error once all attempts failed.
var ErrExhausted = errors.New("retries exhausted")

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = p.Jitter
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.Reset()
	return b
}

// Delays returns the wait before each retry for a policy without jitter.
func (p Policy) Delays() []time.Duration {
	p.Jitter = 0
	b := p.backOff()
	n := p.MaxAttempts - 1
	if n < 0 {
		n = 0
	}
	out := make([]time.Duration, n)
	for i := range out {
		out[i] = b.NextBackOff()
	}
	return out
}

// Do runs op up to p.MaxAttempts times. The first attempt always runs; later
// attempts stop as soon as ctx is done. It returns the value, the number of
// attempts made and the last error.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error), opts ...Option) (T, int, error) {
	o := options{sleep: SleepContext}
	for _, opt := range opts {
		opt(&o)
	}

	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	b := p.backOff()

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := op(ctx, attempt)
		if err == nil {
			return v, attempt, nil
		}

		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return zero, attempt, perm.Err
		}
		if attempt >= maxAttempts {
			return zero, attempt, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
		}

		delay := b.NextBackOff()
		if o.notify != nil {
			o.notify(attempt, err, delay)
		}
		if sleepErr := o.sleep(ctx, delay); sleepErr != nil || ctx.Err() != nil {
			return zero, attempt, err
		}
	}
}
