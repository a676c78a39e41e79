package domain

import "context"

// Task is one unit of work submitted to the Bounded Fan-out Executor
// (C3). It must never panic across a package boundary the executor
// can't recover from — the executor recovers task panics itself, but
// well-behaved tasks return a classified error instead.
type Task[R any] func(ctx context.Context) (R, error)

// FanoutResult pairs the outcome of one task with its original input
// index, so callers can tell "empty success" from "failed" without
// losing order.
type FanoutResult[R any] struct {
	Index int
	Value R
	Err   error
}
