// Package ai holds the AI capability contracts, the call policy that wraps every model call,
// and the adapters that implement the capabilities (offline heuristics, an HTTP model service
// and Gemini).
package ai

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/VishwesGopal13/Automotive-Service/internal/logger"
	"github.com/VishwesGopal13/Automotive-Service/internal/metrics"
)

// Policy bounds a capability call.
type Policy struct {
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultPolicy is 30s per attempt, two attempts, 500ms base backoff.
func DefaultPolicy() Policy {
	return Policy{Timeout: 30 * time.Second, MaxAttempts: 2, Backoff: 500 * time.Millisecond}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Caller runs capability calls under a Policy: a shared rate limiter, a per-attempt timeout and
// exponential backoff between attempts.
type Caller struct {
	policy  Policy
	limiter *rate.Limiter
	metrics *metrics.Metrics
	log     logger.Logger
}

// NewCaller builds a Caller. limiter and m may be nil.
func NewCaller(policy Policy, limiter *rate.Limiter, m *metrics.Metrics, log logger.Logger) *Caller {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Timeout <= 0 {
		policy.Timeout = DefaultPolicy().Timeout
	}
	return &Caller{policy: policy, limiter: limiter, metrics: m, log: log}
}

// Policy returns the effective policy.
func (c *Caller) Policy() Policy { return c.policy }

// Call invokes fn until it succeeds, returns a Permanent error, or attempts run out. It returns
// the number of attempts made and the last error with any Permanent marker removed.
func (c *Caller) Call(ctx context.Context, capability string, fn func(ctx context.Context) error) (int, error) {
	backoff := retry.WithMaxRetries(uint64(c.policy.MaxAttempts-1), retry.NewExponential(nonZero(c.policy.Backoff)))

	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.policy.Timeout)
		defer cancel()

		start := time.Now()
		err := fn(attemptCtx)
		if c.metrics != nil {
			c.metrics.AICallDuration.WithLabelValues(capability).Observe(time.Since(start).Seconds())
		}
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			c.recordFailure(capability, "permanent")
			return err
		}
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		c.recordFailure(capability, reason)
		c.log.Warn("ai call attempt failed", "capability", capability, "attempt", attempts, "error", err)
		return retry.RetryableError(err)
	})

	var perm *permanentError
	if errors.As(err, &perm) {
		return attempts, perm.err
	}
	return attempts, err
}

func (c *Caller) recordFailure(capability, reason string) {
	if c.metrics != nil {
		c.metrics.AICallFailures.WithLabelValues(capability, reason).Inc()
	}
}

// go-retry panics on a zero base.
func nonZero(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Millisecond
	}
	return d
}
