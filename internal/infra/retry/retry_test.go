package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yigitkonur/research-powerpack-mcp/internal/domain"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/retry"
)

func policy(maxAttempts int) domain.RetryPolicy {
	return domain.RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		Multiplier:  2,
		JitterRatio: 0.1,
	}
}

func TestRun_FirstAttemptSuccess(t *testing.T) {
	calls := 0
	val, err := retry.Run(context.Background(), nil, policy(3), func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.Nil(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, 1, calls)
}

func TestRun_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	val, err := retry.Run(context.Background(), nil, policy(5), func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, domain.NewClassifiedError(domain.KindRateLimited, "slow down", 429, nil)
		}
		return 7, nil
	})
	require.Nil(t, err)
	assert.Equal(t, 7, val)
	assert.Equal(t, 3, calls)
}

func TestRun_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	_, err := retry.Run(context.Background(), nil, policy(5), func(ctx context.Context) (int, error) {
		calls++
		return 0, domain.NewClassifiedError(domain.KindInvalidInput, "bad", 400, nil)
	})
	require.NotNil(t, err)
	assert.Equal(t, domain.KindInvalidInput, err.Kind)
	assert.Equal(t, 1, calls)
}

func TestRun_AllAttemptsFail(t *testing.T) {
	calls := 0
	_, err := retry.Run(context.Background(), nil, policy(3), func(ctx context.Context) (int, error) {
		calls++
		return 0, domain.NewClassifiedError(domain.KindServiceUnavailable, "down", 503, nil)
	})
	require.NotNil(t, err)
	assert.Equal(t, domain.KindServiceUnavailable, err.Kind)
	assert.Equal(t, 3, calls)
}

func TestRun_SingleAttemptPolicy(t *testing.T) {
	calls := 0
	_, err := retry.Run(context.Background(), nil, policy(1), func(ctx context.Context) (int, error) {
		calls++
		return 0, domain.NewClassifiedError(domain.KindNetwork, "refused", 0, nil)
	})
	require.NotNil(t, err)
	assert.Equal(t, 1, calls)
}

func TestRun_CancellationDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(2 * time.Millisecond)
		cancel()
	}()
	p := policy(20)
	p.BaseDelay = 200 * time.Millisecond
	_, err := retry.Run(ctx, nil, p, func(ctx context.Context) (int, error) {
		calls++
		return 0, domain.NewClassifiedError(domain.KindTimeout, "slow", 0, nil)
	})
	require.NotNil(t, err)
	assert.True(t, err.Retryable)
	assert.Less(t, calls, 20)
}

func TestRun_UnclassifiedErrorIsClassified(t *testing.T) {
	_, err := retry.Run(context.Background(), nil, policy(1), func(ctx context.Context) (int, error) {
		return 0, errors.New("unexpected token in JSON")
	})
	require.NotNil(t, err)
	assert.Equal(t, domain.KindParse, err.Kind)
}

type stubRetryMetrics struct {
	attempts   int
	classified []string
}

func (s *stubRetryMetrics) RetryAttempted(string) { s.attempts++ }
func (s *stubRetryMetrics) ErrorClassified(_, kind string) {
	s.classified = append(s.classified, kind)
}

func TestRun_MetricsHooksCountRetriesAndClassifications(t *testing.T) {
	m := &stubRetryMetrics{}
	calls := 0
	_, err := retry.Run(context.Background(), nil, policy(3), func(ctx context.Context) (int, error) {
		calls++
		return 0, domain.NewClassifiedError(domain.KindServiceUnavailable, "down", 503, nil)
	}, retry.WithMetrics(m, "test"))
	require.NotNil(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, m.attempts) // attempt 1 is the initial try, not a retry
	assert.Equal(t, 3, len(m.classified))
}

func TestDelayForAttempt_Monotone(t *testing.T) {
	p := policy(10)
	p.JitterRatio = 0
	d0 := retry.DelayForAttempt(p, 0)
	d1 := retry.DelayForAttempt(p, 1)
	d2 := retry.DelayForAttempt(p, 2)
	assert.Equal(t, p.BaseDelay, d0)
	assert.Equal(t, p.BaseDelay*2, d1)
	assert.Equal(t, p.BaseDelay*4, d2)

	// P4: within [base*mult^i, base*mult^i*(1+jitter)] clipped to max_delay.
	p.JitterRatio = 0.5
	p.MaxDelay = 3 * time.Millisecond
	d := retry.DelayForAttempt(p, 5)
	assert.LessOrEqual(t, d, p.MaxDelay)
}
