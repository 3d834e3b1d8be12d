package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds an activity invocation: total attempts, exponential
// backoff between them, and an overall timeout across all attempts.
type RetryPolicy struct {
	MaxAttempts        int
	InitialInterval    time.Duration
	BackoffCoefficient float64
	Timeout            time.Duration
}

// DefaultRetryPolicy covers fast internal state mutations.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:        3,
	InitialInterval:    2 * time.Second,
	BackoffCoefficient: 2.0,
	Timeout:            30 * time.Second,
}

// MoneyRetryPolicy covers money-moving calls (capture, refund). Transient
// infrastructure failures are retried; application-level declines surface
// as BusinessError and are never retried.
var MoneyRetryPolicy = RetryPolicy{
	MaxAttempts:        3,
	InitialInterval:    2 * time.Second,
	BackoffCoefficient: 2.0,
	Timeout:            45 * time.Second,
}

// ActivityFunc is one side-effecting external call made on behalf of a
// workflow step.
type ActivityFunc func(ctx context.Context) (interface{}, error)

// Executor invokes activities with bounded retries and backoff.
type Executor struct {
	log *slog.Logger
}

// NewExecutor creates an Executor logging through log.
func NewExecutor(log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{log: log}
}

// policyBackoff yields interval, interval*coefficient, interval*coefficient^2, ...
func policyBackoff(p RetryPolicy) retry.Backoff {
	interval := p.InitialInterval
	coefficient := p.BackoffCoefficient
	if coefficient <= 0 {
		coefficient = 1
	}
	return retry.BackoffFunc(func() (time.Duration, bool) {
		d := interval
		interval = time.Duration(float64(interval) * coefficient)
		return d, false
	})
}

// Execute invokes fn under the policy. Transient failures are retried up to
// MaxAttempts; a BusinessError propagates immediately. Exhausting attempts
// returns an ActivityError wrapping the last cause. A parent context
// cancellation surfaces as the context error.
func (e *Executor) Execute(parent context.Context, name string, p RetryPolicy, fn ActivityFunc) (interface{}, error) {
	ctx := parent
	cancel := context.CancelFunc(func() {})
	if p.Timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, p.Timeout)
	}
	defer cancel()

	maxRetries := uint64(0)
	if p.MaxAttempts > 1 {
		maxRetries = uint64(p.MaxAttempts - 1)
	}
	backoff := retry.WithMaxRetries(maxRetries, policyBackoff(p))

	var out interface{}
	attempts := 0

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		v, err := fn(ctx)
		if err != nil {
			if IsBusinessError(err) {
				return err
			}
			e.log.Warn("activity attempt failed",
				"activity", name, "attempt", attempts, "max_attempts", p.MaxAttempts, "error", err)
			return retry.RetryableError(err)
		}
		out = v
		return nil
	})
	if err == nil {
		return out, nil
	}
	if IsBusinessError(err) {
		return nil, err
	}
	if parent.Err() != nil {
		return nil, parent.Err()
	}
	return nil, &ActivityError{Name: name, Attempts: attempts, Err: err}
}
