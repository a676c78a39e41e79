// Package fanout implements the Bounded Fan-out Executor (C3): a
// sliding-window pool that runs N tasks with at most K in flight,
// preserving input-order results and isolating per-task failures.
//
// The concurrency idiom (buffered channel as a counting semaphore,
// write-to-own-index result slice, sync.WaitGroup barrier) mirrors the
// observability fan-out in the teacher's pipeline.Engine.runObservability:
// one goroutine per task, errors captured instead of propagated, a
// single WaitGroup closing the gate.
package fanout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yigitkonur/research-powerpack-mcp/internal/domain"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/classify"
)

// Metrics is the subset of the Prometheus surface Run reports into,
// independent of the task's result type so one implementation covers
// every Run[T, R] instantiation regardless of T/R. Satisfied by
// *metrics.PROC.
type Metrics interface {
	FanoutStarted(label string)
	FanoutFinished(label string, d time.Duration)
	ErrorClassified(label, kind string)
}

type noopMetrics struct{}

func (noopMetrics) FanoutStarted(string)                {}
func (noopMetrics) FanoutFinished(string, time.Duration) {}
func (noopMetrics) ErrorClassified(string, string)       {}

// Option configures optional instrumentation for Run; see WithMetrics.
type Option func(*runConfig)

type runConfig struct {
	label   string
	metrics Metrics
}

// WithMetrics reports every task's in-flight span, and any panic
// recovered from it, into m under label — typically the calling
// adapter's name (e.g. "scraper").
func WithMetrics(m Metrics, label string) Option {
	return func(c *runConfig) {
		if m != nil {
			c.metrics = m
		}
		c.label = label
	}
}

// Run executes task once per element of inputs, with at most
// maxInFlight tasks running concurrently. The returned slice has the
// same length as inputs and result[i] always corresponds to inputs[i]
// regardless of completion order (P1). A maxInFlight <= 0 is treated
// as 1 (never zero concurrency, never unbounded).
//
// Failure isolation (P3, §4.3): a panicking task is recovered and
// materialized as a classified Internal error at its index; it never
// aborts its peers and never propagates out of Run.
func Run[T, R any](ctx context.Context, inputs []T, maxInFlight int, task func(ctx context.Context, in T) (R, error), opts ...Option) []domain.FanoutResult[R] {
	cfg := runConfig{metrics: noopMetrics{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	n := len(inputs)
	results := make([]domain.FanoutResult[R], n)
	if n == 0 {
		return results
	}
	if maxInFlight <= 0 {
		maxInFlight = 1
	}

	// sem is the sliding-window gate: a filled slot represents one
	// task in flight. Acquiring blocks (back-pressure) rather than
	// buffering pending work into an unbounded queue (§4.3 "no
	// unbounded queue growth").
	sem := make(chan struct{}, maxInFlight)
	var wg sync.WaitGroup

	for i, in := range inputs {
		i, in := i, in
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results[i] = domain.FanoutResult[R]{Index: i, Err: ctx.Err()}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }() // release the slot even if task panics
			cfg.metrics.FanoutStarted(cfg.label)
			start := time.Now()
			results[i] = runOne(ctx, i, in, task, cfg)
			cfg.metrics.FanoutFinished(cfg.label, time.Since(start))
		}()
	}

	wg.Wait()
	return results
}

func runOne[T, R any](ctx context.Context, index int, in T, task func(ctx context.Context, in T) (R, error), cfg runConfig) (result domain.FanoutResult[R]) {
	result.Index = index
	defer func() {
		if r := recover(); r != nil {
			ce := classify.Classify(fmt.Errorf("task panic: %v", r), 0)
			ce.Kind = domain.KindInternal
			ce.Retryable = false
			cfg.metrics.ErrorClassified(cfg.label, string(ce.Kind))
			result.Err = ce
		}
	}()
	val, err := task(ctx, in)
	result.Value = val
	result.Err = err
	return result
}
