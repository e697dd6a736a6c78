package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultMaxRetries          = 3
	DefaultInitialInterval     = time.Second
	DefaultMultiplier          = 2.0
	DefaultRandomizationFactor = 0.5
	DefaultMaxInterval         = 30 * time.Second
)

// Policy controls exponential backoff with jitter for one logical call.
// MaxRetries counts retries after the first attempt, so MaxRetries=3 allows four calls.
type Policy struct {
	MaxRetries          int
	InitialInterval     time.Duration
	Multiplier          float64
	RandomizationFactor float64
	MaxInterval         time.Duration
	// Retryable reports whether an error is transient. Nil retries everything
	// except context cancellation.
	Retryable func(error) bool
}

// DefaultPolicy returns base 1s, factor 2, 50% jitter and three retries.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:          DefaultMaxRetries,
		InitialInterval:     DefaultInitialInterval,
		Multiplier:          DefaultMultiplier,
		RandomizationFactor: DefaultRandomizationFactor,
		MaxInterval:         DefaultMaxInterval,
	}
}

// Normalized fills zero fields with defaults. Negative MaxRetries disables retries.
func (p Policy) Normalized() Policy {
	if p.MaxRetries == 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = DefaultInitialInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultMultiplier
	}
	if p.RandomizationFactor <= 0 || p.RandomizationFactor > 1 {
		p.RandomizationFactor = DefaultRandomizationFactor
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = DefaultMaxInterval
	}
	return p
}

// Attempt describes a failed call that is about to be retried.
type Attempt struct {
	Number int
	Err    error
	Wait   time.Duration
}

// Do runs op until it succeeds, returns a non-retryable error, exhausts the retry
// budget, or ctx is done. The last error is returned unchanged.
func (p Policy) Do(ctx context.Context, op func(context.Context) error, onRetry func(Attempt)) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	p = p.Normalized()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.Multiplier = p.Multiplier
	exp.RandomizationFactor = p.RandomizationFactor
	exp.MaxInterval = p.MaxInterval
	exp.MaxElapsedTime = 0
	exp.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxRetries)), ctx)

	attempt := 0
	var lastErr error
	err := backoff.RetryNotify(func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !p.shouldRetry(ctx, err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		if onRetry != nil {
			onRetry(Attempt{Number: attempt, Err: err, Wait: wait})
		}
	})
	if err != nil && lastErr != nil && ctx.Err() == nil {
		return lastErr
	}
	return err
}

func (p Policy) shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if p.Retryable == nil {
		return !errors.Is(err, context.Canceled)
	}
	return p.Retryable(err)
}
