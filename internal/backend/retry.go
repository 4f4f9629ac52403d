package backend

import (
	"context"
	"errors"
	"time"

	"github.com/shaiso/batchflows/internal/domain"
)

// Значения по умолчанию для retry.
const (
	defaultInitialDelay = time.Second
	defaultMaxDelay     = 30 * time.Second
)

// RetryNotify вызывается после каждой неудачной попытки.
// delay — пауза перед следующей попыткой, 0 если попыток больше не будет.
type RetryNotify func(attempt int, err error, delay time.Duration)

// ExecuteWithRetry выполняет job с retry согласно policy.
//
// job.Attempt выставляется перед каждой попыткой. Ошибки таймаута
// и отмены ctx не повторяются.
func ExecuteWithRetry(ctx context.Context, executor Executor, job *Job, policy *domain.RetryPolicy, notify RetryNotify) (*Result, error) {
	maxAttempts := 1
	if policy != nil && policy.MaxAttempts > 0 {
		maxAttempts = policy.MaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		job.Attempt = attempt

		result, err := executor.Execute(ctx, job)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == maxAttempts || !retryable(ctx, err) {
			if notify != nil {
				notify(attempt, err, 0)
			}
			break
		}

		delay := calculateBackoff(attempt, policy)
		if notify != nil {
			notify(attempt, err, delay)
		}

		// Ждём с учётом context
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, ErrInvalidJob)
}

// calculateBackoff вычисляет задержку перед retry.
func calculateBackoff(attempt int, policy *domain.RetryPolicy) time.Duration {
	if policy == nil {
		return defaultInitialDelay
	}

	initialDelay := time.Duration(policy.InitialDelayMs) * time.Millisecond
	if initialDelay <= 0 {
		initialDelay = defaultInitialDelay
	}

	maxDelay := time.Duration(policy.MaxDelayMs) * time.Millisecond
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}

	var delay time.Duration
	switch policy.Backoff {
	case "exponential":
		// delay = initialDelay * 2^(attempt-1)
		delay = initialDelay
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
				break
			}
		}
	default:
		// "fixed" — всегда initialDelay
		delay = initialDelay
	}

	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}
