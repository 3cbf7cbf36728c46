package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitSucceedsAfterTemporaryFailures(t *testing.T) {
	attempts := 0
	opts := Options{RetryInterval: time.Millisecond, AllowedErrors: 3}
	got, err := Wait(context.Background(), opts, func(ctx context.Context) Result[int] {
		attempts++
		if attempts < 3 {
			return Temporary[int](errors.New("transient"))
		}
		return Done(42)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestWaitPermanentFailureStopsImmediately(t *testing.T) {
	attempts := 0
	boom := errors.New("permanent")
	opts := Options{RetryInterval: time.Millisecond, AllowedErrors: 3}
	_, err := Wait(context.Background(), opts, func(ctx context.Context) Result[int] {
		attempts++
		return Permanent[int](boom)
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected permanent error %v, got %v", boom, err)
	}
	if attempts != 1 {
		t.Fatalf("expected exactly one attempt, got %d", attempts)
	}
}

func TestWaitExhaustsAllowedErrors(t *testing.T) {
	attempts := 0
	opts := Options{RetryInterval: time.Millisecond, AllowedErrors: 2}
	_, err := Wait(context.Background(), opts, func(ctx context.Context) Result[int] {
		attempts++
		return Temporary[int](errors.New("still failing"))
	})
	if err == nil {
		t.Fatal("expected an error once allowed errors are exhausted")
	}
	// Initial attempt + AllowedErrors retries = 3.
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestWaitZeroAllowedErrorsFailsImmediately(t *testing.T) {
	opts := Options{RetryInterval: time.Millisecond, AllowedErrors: 0}
	attempts := 0
	_, err := Wait(context.Background(), opts, func(ctx context.Context) Result[int] {
		attempts++
		return Temporary[int](errors.New("nope"))
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt with AllowedErrors=0, got %d", attempts)
	}
}

func TestSaturatingDoubleDoesNotOverflow(t *testing.T) {
	const max = time.Duration(1<<63 - 1)
	if got := saturatingDouble(max); got != max {
		t.Fatalf("saturatingDouble(max) = %v, want %v", got, max)
	}
}
