package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryPolicy controls backoff between attempts.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the exponential delay.
	MaxDelay time.Duration
	// Jitter is the fraction (0-1) by which a delay is randomly spread.
	Jitter float64
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   30 * time.Second,
		Jitter:     0.2,
	}
}

// RetryExecutor invokes an operation with bounded retries for transient errors.
type RetryExecutor struct {
	policy RetryPolicy
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	random func() float64
}

// RetryOption configures a RetryExecutor.
type RetryOption func(*RetryExecutor)

// WithRetryLogger sets the logger used for retry diagnostics.
func WithRetryLogger(l *slog.Logger) RetryOption {
	return func(r *RetryExecutor) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithSleep replaces the context-aware sleep. Tests use it to avoid waiting.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) RetryOption {
	return func(r *RetryExecutor) {
		if fn != nil {
			r.sleep = fn
		}
	}
}

// NewRetryExecutor creates an executor for the given policy.
func NewRetryExecutor(policy RetryPolicy, opts ...RetryOption) *RetryExecutor {
	r := &RetryExecutor{
		policy: policy,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		sleep:  sleepContext,
		random: rand.Float64,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the executor's policy.
func (r *RetryExecutor) Policy() RetryPolicy {
	return r.policy
}

// Execute runs op on input, retrying transient failures up to maxRetries times.
// An operation that fails k times before succeeding is invoked min(k, maxRetries)+1
// times and succeeds iff k <= maxRetries. Non-retryable errors return immediately.
func (r *RetryExecutor) Execute(ctx context.Context, op ExecuteFunc, input string, maxRetries int) (string, error) {
	out, _, err := r.ExecuteWithAttempts(ctx, op, input, maxRetries)
	return out, err
}

// ExecuteWithAttempts is Execute that also reports how many times op was invoked.
func (r *RetryExecutor) ExecuteWithAttempts(ctx context.Context, op ExecuteFunc, input string, maxRetries int) (string, int, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}

	for attempt := 1; ; attempt++ {
		out, err := op(ctx, input)
		if err == nil {
			return out, attempt, nil
		}

		if !IsRetryable(err) || attempt > maxRetries {
			return "", attempt, err
		}

		delay := r.delay(attempt, err)
		r.logger.Debug("retrying after transient error",
			"attempt", attempt,
			"max_retries", maxRetries,
			"delay", delay,
			"error", err,
		)

		if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
			return "", attempt, fmt.Errorf("retry aborted: %w (last error: %v)", sleepErr, err)
		}
	}
}

// delay returns the wait before the retry following the given failed attempt.
// A backend-provided retry-after wins over the computed backoff.
func (r *RetryExecutor) delay(attempt int, err error) time.Duration {
	if d, ok := RetryAfter(err); ok {
		return d
	}
	return r.Backoff(attempt)
}

// Backoff computes the jittered exponential delay for a failed attempt (1-indexed).
func (r *RetryExecutor) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := r.policy.BaseDelay
	if base <= 0 {
		return 0
	}

	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if r.policy.MaxDelay > 0 && d >= r.policy.MaxDelay {
			d = r.policy.MaxDelay
			break
		}
	}
	if r.policy.MaxDelay > 0 && d > r.policy.MaxDelay {
		d = r.policy.MaxDelay
	}

	if j := r.policy.Jitter; j > 0 {
		if j > 1 {
			j = 1
		}
		spread := 1 + j*(2*r.random()-1)
		d = time.Duration(float64(d) * spread)
	}
	if d < 0 {
		d = 0
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
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

// retryAgent decorates an Agent so every Execute goes through a RetryExecutor.
type retryAgent struct {
	Agent
	exec *RetryExecutor
}

// WithRetry wraps a single agent with retry behaviour.
func WithRetry(a Agent, exec *RetryExecutor) Agent {
	return &retryAgent{Agent: a, exec: exec}
}

func (r *retryAgent) Execute(ctx context.Context, input string) (string, error) {
	return r.exec.Execute(ctx, r.Agent.Execute, input, r.exec.policy.MaxRetries)
}
