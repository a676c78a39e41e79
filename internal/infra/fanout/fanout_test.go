package fanout_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/fanout"
)

func TestRun_EmptyInput(t *testing.T) {
	results := fanout.Run(context.Background(), []int{}, 4, func(ctx context.Context, in int) (int, error) {
		t.Fatal("task should never run for empty input")
		return 0, nil
	})
	assert.Empty(t, results)
}

func TestRun_OrderPreservation(t *testing.T) {
	inputs := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	results := fanout.Run(context.Background(), inputs, 3, func(ctx context.Context, in int) (int, error) {
		// Sleep inversely so completion order differs from input order.
		time.Sleep(time.Duration(10-in) * time.Millisecond)
		return in * in, nil
	})
	require.Len(t, results, len(inputs))
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, i*i, r.Value)
		assert.NoError(t, r.Err)
	}
}

func TestRun_ConcurrencyCapEnforced(t *testing.T) {
	const n = 50
	const maxInFlight = 10
	inputs := make([]int, n)
	var inFlight int32
	var maxObserved int32
	results := fanout.Run(context.Background(), inputs, maxInFlight, func(ctx context.Context, in int) (struct{}, error) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			max := atomic.LoadInt32(&maxObserved)
			if cur <= max || atomic.CompareAndSwapInt32(&maxObserved, max, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return struct{}{}, nil
	})
	require.Len(t, results, n)
	assert.LessOrEqual(t, int(atomic.LoadInt32(&maxObserved)), maxInFlight)
}

func TestRun_FailureIsolation(t *testing.T) {
	inputs := []int{1, 2, 3, 4, 5}
	results := fanout.Run(context.Background(), inputs, 5, func(ctx context.Context, in int) (int, error) {
		if in == 3 {
			return 0, errors.New("boom")
		}
		return in, nil
	})
	for i, r := range results {
		if inputs[i] == 3 {
			assert.Error(t, r.Err)
		} else {
			assert.NoError(t, r.Err)
			assert.Equal(t, inputs[i], r.Value)
		}
	}
}

func TestRun_PanicIsIsolated(t *testing.T) {
	inputs := []int{1, 2, 3}
	results := fanout.Run(context.Background(), inputs, 3, func(ctx context.Context, in int) (int, error) {
		if in == 2 {
			panic("task blew up")
		}
		return in, nil
	})
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
}

func TestRun_NoSlotLeak(t *testing.T) {
	// 20 tasks with cap 5, half of which panic: if panics leaked
	// their slot the run would deadlock and this test would time out.
	inputs := make([]int, 20)
	for i := range inputs {
		inputs[i] = i
	}
	done := make(chan struct{})
	go func() {
		fanout.Run(context.Background(), inputs, 5, func(ctx context.Context, in int) (int, error) {
			if in%2 == 0 {
				panic("fail")
			}
			return in, nil
		})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("fan-out deadlocked, a task leaked its concurrency slot")
	}
}

type stubFanoutMetrics struct {
	started    int32
	finished   int32
	classified []string
}

func (s *stubFanoutMetrics) FanoutStarted(string)                { atomic.AddInt32(&s.started, 1) }
func (s *stubFanoutMetrics) FanoutFinished(string, time.Duration) { atomic.AddInt32(&s.finished, 1) }
func (s *stubFanoutMetrics) ErrorClassified(_, kind string) {
	s.classified = append(s.classified, kind)
}

func TestRun_MetricsHooksFireForEveryTaskAndOnPanic(t *testing.T) {
	m := &stubFanoutMetrics{}
	inputs := []int{1, 2, 3}
	results := fanout.Run(context.Background(), inputs, 3, func(ctx context.Context, in int) (int, error) {
		if in == 2 {
			panic("task blew up")
		}
		return in, nil
	}, fanout.WithMetrics(m, "test"))
	require.Len(t, results, 3)
	assert.EqualValues(t, 3, atomic.LoadInt32(&m.started))
	assert.EqualValues(t, 3, atomic.LoadInt32(&m.finished))
	assert.Equal(t, []string{"INTERNAL"}, m.classified)
}

func TestRun_SingleElement(t *testing.T) {
	results := fanout.Run(context.Background(), []string{"only"}, 4, func(ctx context.Context, in string) (string, error) {
		return in + "!", nil
	})
	require.Len(t, results, 1)
	assert.Equal(t, "only!", results[0].Value)
}
