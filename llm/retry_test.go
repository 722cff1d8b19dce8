package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:        maxRetries,
		BaseDelay:         0.001,
		MaxDelay:          0.01,
		BackoffMultiplier: 2.0,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), fastPolicy(3), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &ServerError{ProviderError{EngineError: EngineError{Message: "upstream 500"}}}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if result != "ok" || calls != 3 {
		t.Errorf("result = %q after %d calls", result, calls)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	authErr := &AuthenticationError{ProviderError{EngineError: EngineError{Message: "bad key"}}}
	_, err := Retry(context.Background(), fastPolicy(5), func(context.Context) (string, error) {
		calls++
		return "", authErr
	})
	if !errors.Is(err, authErr) {
		t.Fatalf("err = %v, want the auth error", err)
	}
	if calls != 1 {
		t.Errorf("non-retryable error retried %d times", calls-1)
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(2), func(context.Context) (int, error) {
		calls++
		return 0, &RateLimitError{ProviderError{EngineError: EngineError{Message: "429"}, Retryable: true}}
	})
	if err == nil {
		t.Fatal("expected error after budget exhaustion")
	}
	// Initial call plus MaxRetries attempts.
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryOnRetryCallback(t *testing.T) {
	policy := fastPolicy(2)
	var attempts []int
	policy.OnRetry = func(_ error, attempt int, _ time.Duration) {
		attempts = append(attempts, attempt)
	}

	_, _ = Retry(context.Background(), policy, func(context.Context) (int, error) {
		return 0, &ServerError{ProviderError{EngineError: EngineError{Message: "500"}}}
	})
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("attempts = %v, want [1 2]", attempts)
	}
}

func TestRetryCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := fastPolicy(2)
	policy.BaseDelay = 10 // long enough that cancellation wins the select
	_, err := Retry(ctx, policy, func(context.Context) (int, error) {
		return 0, &ServerError{ProviderError{EngineError: EngineError{Message: "500"}}}
	})
	var abort *AbortError
	if !errors.As(err, &abort) {
		t.Fatalf("err = %v, want *AbortError", err)
	}
}

func TestDelayBackoffAndCap(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 1, MaxDelay: 4, BackoffMultiplier: 2}

	if got := policy.Delay(0); got != time.Second {
		t.Errorf("Delay(0) = %v, want 1s", got)
	}
	if got := policy.Delay(1); got != 2*time.Second {
		t.Errorf("Delay(1) = %v, want 2s", got)
	}
	// Capped at MaxDelay beyond the crossover point.
	if got := policy.Delay(10); got != 4*time.Second {
		t.Errorf("Delay(10) = %v, want 4s", got)
	}
}

func TestDelayJitterBounds(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 2, MaxDelay: 60, BackoffMultiplier: 2, Jitter: true}
	for i := 0; i < 50; i++ {
		d := policy.Delay(0)
		if d < time.Second || d > 3*time.Second {
			t.Fatalf("jittered delay %v outside [1s, 3s]", d)
		}
	}
}

func TestRetryingDeciderPassesThrough(t *testing.T) {
	calls := 0
	inner := DeciderFunc(func(context.Context, []Message, string, []ToolDefinition) (*Decision, error) {
		calls++
		if calls == 1 {
			return nil, &ServerError{ProviderError{EngineError: EngineError{Message: "500"}}}
		}
		return &Decision{Content: "recovered"}, nil
	})

	d := &RetryingDecider{Inner: inner, Policy: fastPolicy(2)}
	decision, err := d.Decide(context.Background(), nil, "", nil)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decision.Content != "recovered" || calls != 2 {
		t.Errorf("decision = %+v after %d calls", decision, calls)
	}
}
