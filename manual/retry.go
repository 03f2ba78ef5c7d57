package manual

import (
	"context"
	"errors"
	"net"
	"net/http"
	"slices"
	"time"
)

// RetryPolicy is read from the "retry" call template field.
type RetryPolicy struct {
	MaxAttempts    int
	BackoffMS      int
	RetryableCodes []int
}

var defaultRetryableCodes = []int{
	http.StatusTooManyRequests,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

func retryPolicyFrom(raw any) RetryPolicy {
	fields, ok := raw.(map[string]any)
	if !ok {
		return RetryPolicy{MaxAttempts: 1}
	}
	policy := RetryPolicy{
		MaxAttempts: intField(fields["max_attempts"]),
		BackoffMS:   intField(fields["backoff_ms"]),
	}
	if codes, ok := fields["retryable_codes"].([]any); ok {
		for _, code := range codes {
			if n := intField(code); n > 0 {
				policy.RetryableCodes = append(policy.RetryableCodes, n)
			}
		}
	}
	return normalizeRetryPolicy(policy)
}

func normalizeRetryPolicy(policy RetryPolicy) RetryPolicy {
	out := policy
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 1
	}
	if out.BackoffMS < 0 {
		out.BackoffMS = 0
	}
	if len(out.RetryableCodes) == 0 {
		out.RetryableCodes = defaultRetryableCodes
	}
	return out
}

// withRetry runs fn until it succeeds, fails with a non-retryable error, or
// the policy's attempts run out. Backoff grows linearly with the attempt.
func withRetry(ctx context.Context, policy RetryPolicy, fn func(attempt int) (any, error)) (any, error) {
	policy = normalizeRetryPolicy(policy)
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := fn(attempt)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if attempt == policy.MaxAttempts || !policy.retryable(err) {
			return nil, err
		}

		wait := time.Duration(policy.BackoffMS*attempt) * time.Millisecond
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func (p RetryPolicy) retryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return slices.Contains(p.RetryableCodes, statusErr.StatusCode)
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func intField(raw any) int {
	switch v := raw.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
