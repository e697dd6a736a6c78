package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

var errPermanent = errors.New("permanent")

func testPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func TestDo_FailTwiceThenSucceed(t *testing.T) {
	t.Parallel()

	attempts := 0
	var notified []Attempt
	err := testPolicy(3).Do(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("attempt %d failed", attempts)
		}
		return nil
	}, func(a Attempt) {
		notified = append(notified, a)
	})
	if err != nil {
		t.Fatalf("do returned error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("unexpected attempts: %d", attempts)
	}
	if len(notified) != 2 {
		t.Fatalf("expected 2 retry notifications, got %d", len(notified))
	}
	for i, a := range notified {
		if a.Number != i+1 {
			t.Fatalf("notification %d: unexpected attempt number %d", i, a.Number)
		}
		if a.Err == nil {
			t.Fatalf("notification %d: missing error", i)
		}
	}
}

func TestDo_ExhaustsRetryBudget(t *testing.T) {
	t.Parallel()

	attempts := 0
	sentinel := errors.New("still down")
	err := testPolicy(3).Do(context.Background(), func(context.Context) error {
		attempts++
		return fmt.Errorf("attempt %d: %w", attempts, sentinel)
	}, nil)
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected last error to wrap sentinel, got %v", err)
	}
	if attempts != 4 {
		t.Fatalf("expected 1 call plus 3 retries, got %d", attempts)
	}
	if err.Error() != "attempt 4: still down" {
		t.Fatalf("expected the last error unchanged, got %q", err.Error())
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	t.Parallel()

	policy := testPolicy(5)
	policy.Retryable = func(err error) bool { return !errors.Is(err, errPermanent) }

	attempts := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		attempts++
		return errPermanent
	}, func(Attempt) {
		t.Fatalf("non-retryable error must not be retried")
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected errPermanent, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("unexpected attempts: %d", attempts)
	}
}

func TestDo_NegativeRetriesDisablesRetry(t *testing.T) {
	t.Parallel()

	attempts := 0
	_ = testPolicy(-1).Do(context.Background(), func(context.Context) error {
		attempts++
		return errors.New("nope")
	}, nil)
	if attempts != 1 {
		t.Fatalf("unexpected attempts: %d", attempts)
	}
}

func TestDo_CancelledContextSkipsCall(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := testPolicy(3).Do(ctx, func(context.Context) error {
		called = true
		return nil
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Fatalf("op must not run with a cancelled context")
	}
}

func TestDo_CancelDuringBackoffStopsRetrying(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	policy := Policy{MaxRetries: 10, InitialInterval: time.Hour, MaxInterval: time.Hour}
	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- policy.Do(ctx, func(context.Context) error {
			attempts++
			return errors.New("transient")
		}, func(Attempt) {
			cancel()
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("retry loop did not observe cancellation")
	}
	if attempts != 1 {
		t.Fatalf("unexpected attempts: %d", attempts)
	}
}

func TestNormalizedDefaults(t *testing.T) {
	t.Parallel()

	got := Policy{}.Normalized()
	want := DefaultPolicy()
	if got.MaxRetries != want.MaxRetries ||
		got.InitialInterval != want.InitialInterval ||
		got.Multiplier != want.Multiplier ||
		got.RandomizationFactor != want.RandomizationFactor ||
		got.MaxInterval != want.MaxInterval {
		t.Fatalf("unexpected defaults: got=%+v want=%+v", got, want)
	}
}
