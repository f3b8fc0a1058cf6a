package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/antigravity-gateway/gateway/internal/gwerrors"
)

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	stateChanges := make([]gobreaker.State, 0)
	cfg := DefaultBreakerConfig("test")
	cfg.MinRequests = 3
	cfg.FailureThreshold = 3
	cfg.OnStateChange = func(_ string, _, to gobreaker.State) {
		stateChanges = append(stateChanges, to)
	}

	breaker := NewCircuitBreaker(cfg)

	for i := 0; i < 5; i++ {
		breaker.Execute(func() (any, error) { return nil, errors.New("fail") })
	}

	if breaker.State() != gobreaker.StateOpen {
		t.Errorf("expected StateOpen, got %v", breaker.State())
	}

	if len(stateChanges) == 0 || stateChanges[len(stateChanges)-1] != gobreaker.StateOpen {
		t.Errorf("expected state change to Open, got %v", stateChanges)
	}
}

func TestCircuitBreakerStaysClosedOnSuccess(t *testing.T) {
	cfg := DefaultBreakerConfig("test-success")
	cfg.MinRequests = 3
	cfg.FailureThreshold = 5

	breaker := NewCircuitBreaker(cfg)

	for i := 0; i < 10; i++ {
		breaker.Execute(func() (any, error) { return "ok", nil })
	}

	if breaker.State() != gobreaker.StateClosed {
		t.Errorf("expected StateClosed, got %v", breaker.State())
	}
}

func TestCircuitBreakerHalfOpenAfterTimeout(t *testing.T) {
	cfg := DefaultBreakerConfig("test-timeout")
	cfg.MinRequests = 2
	cfg.FailureThreshold = 2
	cfg.Timeout = 50 * time.Millisecond

	breaker := NewCircuitBreaker(cfg)

	for i := 0; i < 3; i++ {
		breaker.Execute(func() (any, error) { return nil, errors.New("fail") })
	}

	if breaker.State() != gobreaker.StateOpen {
		t.Fatalf("expected StateOpen, got %v", breaker.State())
	}

	time.Sleep(60 * time.Millisecond)

	if breaker.State() != gobreaker.StateHalfOpen {
		t.Errorf("expected StateHalfOpen after timeout, got %v", breaker.State())
	}
}

func TestCircuitBreakerReturnsCountsCorrectly(t *testing.T) {
	cfg := DefaultBreakerConfig("test-counts")
	breaker := NewCircuitBreaker(cfg)

	breaker.Execute(func() (any, error) { return "ok", nil })
	breaker.Execute(func() (any, error) { return nil, errors.New("fail") })
	breaker.Execute(func() (any, error) { return "ok", nil })

	counts := breaker.Counts()
	if counts.Requests != 3 {
		t.Errorf("expected 3 requests, got %d", counts.Requests)
	}
	if counts.TotalSuccesses != 2 {
		t.Errorf("expected 2 successes, got %d", counts.TotalSuccesses)
	}
	if counts.TotalFailures != 1 {
		t.Errorf("expected 1 failure, got %d", counts.TotalFailures)
	}
}

func TestCircuitBreakerName(t *testing.T) {
	cfg := DefaultBreakerConfig("my-breaker")
	breaker := NewCircuitBreaker(cfg)

	if breaker.Name() != "my-breaker" {
		t.Errorf("expected name 'my-breaker', got %s", breaker.Name())
	}
}

func TestDefaultIsSuccessfulTreatsRateLimitAndCredentialFatalAsOutsideBreaker(t *testing.T) {
	if !DefaultIsSuccessful(nil) {
		t.Error("nil error should be successful")
	}
	if !DefaultIsSuccessful(gwerrors.New(429, "rate_limited", "too many requests")) {
		t.Error("429 should not count against the breaker")
	}
	if !DefaultIsSuccessful(gwerrors.New(403, "forbidden", "bad credential")) {
		t.Error("credential-fatal errors should not count against the breaker")
	}
	if DefaultIsSuccessful(gwerrors.New(500, "server_error", "boom")) {
		t.Error("a plain 5xx should count as a breaker failure")
	}
}

func TestDefaultRetryConfigShouldRetryIsRateLimitOnly(t *testing.T) {
	if !DefaultRetryConfig.ShouldRetry(nil, gwerrors.New(429, "rate_limited", "too many requests")) {
		t.Error("expected retry on 429")
	}
	if DefaultRetryConfig.ShouldRetry(nil, gwerrors.New(500, "server_error", "boom")) {
		t.Error("expected no retry on non-429 gwerrors.Error")
	}
	if DefaultRetryConfig.ShouldRetry(nil, errors.New("transport reset")) {
		t.Error("expected no retry on an untyped transport error")
	}
}

func TestRetrierRetriesOnlyOn429(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, ShouldRetry: DefaultRetryConfig.ShouldRetry})

	attempts := 0
	err := r.Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return gwerrors.New(429, "rate_limited", "slow down")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", attempts)
	}

	attempts = 0
	err = r.Do(context.Background(), func() error {
		attempts++
		return gwerrors.New(400, "bad_request", "nope")
	})
	if err == nil {
		t.Fatal("expected error to surface")
	}
	if attempts != 1 {
		t.Errorf("expected no retries on a non-429 error, got %d attempts", attempts)
	}
}

func TestBreakerRegistryReusesBreakerPerCredential(t *testing.T) {
	reg := NewBreakerRegistry(nil)
	a := reg.For("token-a")
	b := reg.For("token-a")
	c := reg.For("token-b")

	if a != b {
		t.Error("expected the same breaker instance for the same credential")
	}
	if a == c {
		t.Error("expected distinct breakers for distinct credentials")
	}
}
