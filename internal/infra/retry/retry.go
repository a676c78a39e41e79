// Package retry implements the Retry Engine (C2): run_with_retry
// executes one async attempt under a per-call policy, classifying
// failures via C1 and deferring the attempt loop and cancellable
// sleeps to github.com/cenkalti/backoff/v4.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/yigitkonur/research-powerpack-mcp/internal/domain"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/classify"
)

// policyBackOff implements backoff.BackOff, producing the exact delay
// schedule of spec.md §3: min(max_delay, base*mult^i) + uniform[0,
// jitter_ratio*that], for 0-indexed attempt i, with the sum capped at
// max_delay.
type policyBackOff struct {
	policy  domain.RetryPolicy
	attempt int
	rand    *rand.Rand
}

func newPolicyBackOff(policy domain.RetryPolicy) *policyBackOff {
	return &policyBackOff{policy: policy, rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (b *policyBackOff) Reset() { b.attempt = 0 }

func (b *policyBackOff) NextBackOff() time.Duration {
	maxAttempts := b.policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if b.attempt >= maxAttempts-1 {
		return backoff.Stop
	}
	d := DelayForAttempt(b.policy, b.attempt)
	b.attempt++
	return d
}

// DelayForAttempt computes the delay before the (i+1)th attempt per
// the formula in spec.md §3 RetryPolicy. Exported so P4 can be tested
// directly against the formula without driving a full retry loop.
func DelayForAttempt(policy domain.RetryPolicy, i int) time.Duration {
	base := float64(policy.BaseDelay)
	mult := policy.Multiplier
	if mult <= 0 {
		mult = 1
	}
	raw := base
	for n := 0; n < i; n++ {
		raw *= mult
	}
	maxDelay := float64(policy.MaxDelay)
	if maxDelay > 0 && raw > maxDelay {
		raw = maxDelay
	}
	jitter := raw * policy.JitterRatio * randFloat()
	total := raw + jitter
	if maxDelay > 0 && total > maxDelay {
		total = maxDelay
	}
	return time.Duration(total)
}

var randFloat = func() float64 { return rand.Float64() }

// Metrics is the subset of the Prometheus surface Run reports into.
// Satisfied by *metrics.PROC.
type Metrics interface {
	RetryAttempted(provider string)
	ErrorClassified(provider, kind string)
}

type noopMetrics struct{}

func (noopMetrics) RetryAttempted(string)          {}
func (noopMetrics) ErrorClassified(string, string) {}

// Option configures optional instrumentation for Run; see WithMetrics.
type Option func(*runConfig)

type runConfig struct {
	provider string
	metrics  Metrics
}

// WithMetrics reports every retry past the first attempt, and every
// classified failure, into m under provider (the calling adapter's
// name, e.g. "reddit").
func WithMetrics(m Metrics, provider string) Option {
	return func(c *runConfig) {
		if m != nil {
			c.metrics = m
		}
		c.provider = provider
	}
}

// Run executes op under policy, classifying any failure via C1 and
// retrying according to policy.RetryablePredicate (or the default
// ErrorKind retryability). It never panics and never returns a Go
// error directly — failures are always a *domain.ClassifiedError.
func Run[R any](ctx context.Context, logger *zap.Logger, policy domain.RetryPolicy, op func(ctx context.Context) (R, error), opts ...Option) (R, *domain.ClassifiedError) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := runConfig{metrics: noopMetrics{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var result R
	var lastErr *domain.ClassifiedError
	attempt := 0

	operation := func() error {
		attempt++
		if attempt > 1 {
			cfg.metrics.RetryAttempted(cfg.provider)
		}
		val, err := op(ctx)
		if err == nil {
			result = val
			if attempt > 1 {
				logger.Info("operation succeeded after retry", zap.Int("attempt", attempt))
			}
			return nil
		}

		ce, ok := domain.AsClassifiedError(err)
		if !ok {
			ce = classify.Classify(err, 0)
		}
		cfg.metrics.ErrorClassified(cfg.provider, string(ce.Kind))
		lastErr = ce

		if !policy.IsRetryable(ce) {
			return backoff.Permanent(ce)
		}
		if attempt >= maxAttempts {
			return backoff.Permanent(ce)
		}
		return ce
	}

	bo := backoff.WithContext(newPolicyBackOff(policy), ctx)
	err := backoff.Retry(operation, bo)
	if err == nil {
		return result, nil
	}

	// backoff.Retry unwraps a Permanent error to its cause and, on
	// context cancellation, returns ctx.Err() directly — in both
	// cases lastErr already holds the classified error with its
	// retryability preserved, per spec.md §4.2.
	if lastErr != nil {
		return result, lastErr
	}
	ce := classify.Classify(err, 0)
	cfg.metrics.ErrorClassified(cfg.provider, string(ce.Kind))
	return result, ce
}
