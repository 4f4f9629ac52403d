package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/batchflows/internal/domain"
)

// flakyExecutor падает failures раз, затем успешно завершается.
type flakyExecutor struct {
	failures int
	calls    int
	err      error
}

func (e *flakyExecutor) Execute(context.Context, *Job) (*Result, error) {
	e.calls++
	if e.calls <= e.failures {
		if e.err != nil {
			return nil, e.err
		}
		return nil, errors.New("transient")
	}
	return &Result{Artifacts: map[string]any{"ok": true}}, nil
}

func fastPolicy(attempts int) *domain.RetryPolicy {
	return &domain.RetryPolicy{MaxAttempts: attempts, Backoff: "fixed", InitialDelayMs: 1, MaxDelayMs: 1}
}

func TestExecuteWithRetry_SucceedsAfterFailures(t *testing.T) {
	exec := &flakyExecutor{failures: 2}
	job := &Job{}

	var notified []int
	result, err := ExecuteWithRetry(context.Background(), exec, job, fastPolicy(3), func(attempt int, _ error, _ time.Duration) {
		notified = append(notified, attempt)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Artifacts["ok"] != true {
		t.Error("expected successful result")
	}
	if exec.calls != 3 || job.Attempt != 3 {
		t.Errorf("expected 3 attempts, got calls=%d attempt=%d", exec.calls, job.Attempt)
	}
	if len(notified) != 2 {
		t.Errorf("expected 2 notifications, got %v", notified)
	}
}

func TestExecuteWithRetry_Exhausted(t *testing.T) {
	exec := &flakyExecutor{failures: 5}

	_, err := ExecuteWithRetry(context.Background(), exec, &Job{}, fastPolicy(2), nil)
	if err == nil || err.Error() != "transient" {
		t.Errorf("expected last error, got %v", err)
	}
	if exec.calls != 2 {
		t.Errorf("expected 2 calls, got %d", exec.calls)
	}
}

func TestExecuteWithRetry_NilPolicyRunsOnce(t *testing.T) {
	exec := &flakyExecutor{failures: 1}

	if _, err := ExecuteWithRetry(context.Background(), exec, &Job{}, nil, nil); err == nil {
		t.Error("expected error without retries")
	}
	if exec.calls != 1 {
		t.Errorf("expected 1 call, got %d", exec.calls)
	}
}

func TestExecuteWithRetry_InvalidJobNotRetried(t *testing.T) {
	exec := &flakyExecutor{failures: 5, err: ErrInvalidJob}

	_, err := ExecuteWithRetry(context.Background(), exec, &Job{}, fastPolicy(4), nil)
	if !errors.Is(err, ErrInvalidJob) {
		t.Errorf("expected ErrInvalidJob, got %v", err)
	}
	if exec.calls != 1 {
		t.Errorf("expected 1 call, got %d", exec.calls)
	}
}

func TestExecuteWithRetry_ContextCancelled(t *testing.T) {
	exec := &flakyExecutor{failures: 5}
	policy := &domain.RetryPolicy{MaxAttempts: 5, Backoff: "fixed", InitialDelayMs: 60000, MaxDelayMs: 60000}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := ExecuteWithRetry(ctx, exec, &Job{}, policy, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// --- Backoff Tests ---

func TestCalculateBackoff_Exponential(t *testing.T) {
	policy := &domain.RetryPolicy{
		Backoff:        "exponential",
		InitialDelayMs: 1000,
		MaxDelayMs:     10000,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second}, // capped at max
		{6, 10 * time.Second}, // stays at max
	}

	for _, tt := range tests {
		got := calculateBackoff(tt.attempt, policy)
		if got != tt.expected {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.expected, got)
		}
	}
}

func TestCalculateBackoff_Fixed(t *testing.T) {
	policy := &domain.RetryPolicy{
		Backoff:        "fixed",
		InitialDelayMs: 2000,
		MaxDelayMs:     10000,
	}

	// Все попытки — одинаковая задержка
	for attempt := 1; attempt <= 5; attempt++ {
		got := calculateBackoff(attempt, policy)
		if got != 2*time.Second {
			t.Errorf("attempt %d: expected 2s, got %v", attempt, got)
		}
	}
}

func TestCalculateBackoff_Defaults(t *testing.T) {
	if got := calculateBackoff(1, nil); got != time.Second {
		t.Errorf("expected 1s default, got %v", got)
	}

	got := calculateBackoff(10, &domain.RetryPolicy{Backoff: "exponential"})
	if got != 30*time.Second {
		t.Errorf("expected 30s cap by default, got %v", got)
	}
}
