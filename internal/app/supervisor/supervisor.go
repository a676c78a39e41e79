// Package supervisor implements the Process Supervisor (C8): the
// signal-aware context every long-running command runs inside, plus a
// last-resort panic boundary so an uncaught panic in the transport
// loop exits with the documented fatal status instead of a bare crash
// dump. Grounded in the teacher's cmd/mcpdmcp/main.go
// signalAwareContext helper.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

// Context wraps parent with a cancellation triggered by SIGINT or
// SIGTERM. The returned cancel is idempotent and safe to call from
// multiple goroutines; a second signal delivered after the first is a
// no-op rather than a double-cancel panic (§4.8 "SIGINT idempotency").
func Context(parent context.Context, logger *zap.Logger) (context.Context, context.CancelFunc) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("supervisor")

	ctx, cancel := context.WithCancel(parent)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			signal.Stop(signals)
			cancel()
		})
	}

	go func() {
		select {
		case sig := <-signals:
			logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			stop()
		case <-ctx.Done():
			signal.Stop(signals)
		}
	}()

	return ctx, stop
}

// RunFatal runs fn and converts any panic escaping it into the
// documented fatal exit behavior (§6 "exit codes: 1 for startup
// failure or fatal uncaught error"): the panic is logged with a stack
// trace and the process exits 1 rather than printing a raw Go panic
// dump to stderr. fn's own return error also triggers the same exit
// path, so callers have one place to decide "did the server fail".
func RunFatal(logger *zap.Logger, fn func() error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("supervisor")

	defer func() {
		if r := recover(); r != nil {
			logger.Error("fatal panic, shutting down", zap.Any("panic", r), zap.Stack("stacktrace"))
			os.Exit(1)
		}
	}()

	if err := fn(); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
}

// MustNonEmpty is a startup-time fatal check (§6 "unknown parameter
// types are a startup-time fatal error"): callers that encounter an
// invariant violation while building the process should fail loudly
// and immediately rather than limping forward with a half-built tool
// table.
func MustNonEmpty(logger *zap.Logger, label string, n int) {
	if n > 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Fatal(fmt.Sprintf("%s: startup invariant violated, nothing registered", label))
}
