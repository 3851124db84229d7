package probe

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()

	if !policy.ShouldRetry(errors.New("connection refused"), 1) {
		t.Error("expected connection error to be retryable")
	}

	if policy.ShouldRetry(errors.New("error"), 4) {
		t.Error("should not retry after max attempts")
	}

	if d := policy.NextDelay(1); d != 500*time.Millisecond {
		t.Errorf("expected 500ms delay, got %v", d)
	}
	if d := policy.NextDelay(2); d != 1*time.Second {
		t.Errorf("expected 1s delay, got %v", d)
	}
	if d := policy.NextDelay(10); d != 5*time.Second {
		t.Errorf("expected delay capped at 5s, got %v", d)
	}
}

func TestRetryPolicyStatusErrors(t *testing.T) {
	policy := DefaultRetryPolicy()

	if !policy.ShouldRetry(&StatusError{Code: 503}, 1) {
		t.Error("expected 503 to be retryable")
	}
	if !policy.ShouldRetry(&StatusError{Code: 429}, 1) {
		t.Error("expected 429 to be retryable")
	}
	if policy.ShouldRetry(&StatusError{Code: 404}, 1) {
		t.Error("expected 404 to be permanent")
	}
	if policy.ShouldRetry(context.Canceled, 1) {
		t.Error("expected cancellation to be permanent")
	}
	if policy.ShouldRetry(nil, 1) {
		t.Error("nil error should not be retryable")
	}
}

func TestRetryPolicyExecuteSuccess(t *testing.T) {
	policy := &RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond}
	calls := 0

	err := policy.Execute(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("temporary failure")
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryPolicyExecuteReturnsLastErrorUnchanged(t *testing.T) {
	policy := &RetryPolicy{MaxAttempts: 2, InitialDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond}
	sentinel := errors.New("timeout talking to box")
	calls := 0

	err := policy.Execute(context.Background(), func() error {
		calls++
		return sentinel
	})

	if err != sentinel {
		t.Errorf("expected the original error, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestRetryPolicyExecuteNonRetryable(t *testing.T) {
	policy := DefaultRetryPolicy()
	calls := 0

	err := policy.Execute(context.Background(), func() error {
		calls++
		return &StatusError{Code: 400}
	})

	if err == nil {
		t.Error("expected error for non-retryable failure")
	}
	if calls != 1 {
		t.Errorf("expected 1 call for non-retryable error, got %d", calls)
	}
}

func TestRetryPolicyExecuteStopsOnCancel(t *testing.T) {
	policy := &RetryPolicy{MaxAttempts: 5, InitialDelay: time.Hour, Multiplier: 1, MaxDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0

	err := policy.Execute(ctx, func() error {
		calls++
		return errors.New("connection reset")
	})

	if err == nil {
		t.Error("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation was noticed, got %d", calls)
	}
}
