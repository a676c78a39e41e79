package domain

import "time"

// RetryPolicy configures the Retry Engine (C2) for a single provider.
// Delay for attempt i (0-indexed) is min(MaxDelay, BaseDelay *
// Multiplier^i) plus uniform jitter in [0, JitterRatio * that], with
// the sum capped at MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	JitterRatio float64

	// RetryablePredicate overrides the default ErrorKind retryability
	// for provider-specific status-code semantics (§4.2). Nil means
	// "use ClassifiedError.Retryable as classified".
	RetryablePredicate func(*ClassifiedError) bool
}

// IsRetryable resolves whether ce should trigger another attempt under
// this policy.
func (p RetryPolicy) IsRetryable(ce *ClassifiedError) bool {
	if ce == nil {
		return false
	}
	if p.RetryablePredicate != nil {
		return p.RetryablePredicate(ce)
	}
	return ce.Retryable
}

// DefaultRetryPolicy is a conservative production default: small
// number of attempts, short caps. Provider adapters override it with
// their own tuned policy (§4.2, §4.5).
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
		JitterRatio: 0.2,
	}
}
