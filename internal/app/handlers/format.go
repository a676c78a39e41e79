package handlers

import (
	"fmt"
	"strings"

	"github.com/yigitkonur/research-powerpack-mcp/internal/domain"
)

// counters tallies the per-item outcome accounting every handler's
// §4.6 step 5 aggregation stage reports: successes, failures, and a
// free-form set of provider-specific secondary metrics (rate-limit
// hits, tokens used, credits consumed).
type counters struct {
	succeeded int
	failed    int
	extra     map[string]int
}

func newCounters() *counters {
	return &counters{extra: make(map[string]int)}
}

func (c *counters) ok()   { c.succeeded++ }
func (c *counters) fail() { c.failed++ }
func (c *counters) add(key string, n int) {
	c.extra[key] += n
}

// summaryLine renders the fixed "N succeeded, M failed" line every
// handler's Markdown body starts with.
func (c *counters) summaryLine(total int) string {
	return fmt.Sprintf("**%d/%d succeeded**, %d failed", c.succeeded, total, c.failed)
}

// Metrics is the subset of the Prometheus surface a handler reports
// into: the per-call budget allocation it computes before fanning out
// to its adapter. Satisfied by *metrics.PROC.
type Metrics interface {
	BudgetAllocated(tool string, perItem int)
}

type noopMetrics struct{}

func (noopMetrics) BudgetAllocated(string, int) {}

// Option configures optional handler behavior beyond its required
// adapter/budget/logger constructor arguments; see WithMetrics.
type Option func(*handlerConfig)

type handlerConfig struct {
	metrics Metrics
}

func newHandlerConfig(opts []Option) handlerConfig {
	cfg := handlerConfig{metrics: noopMetrics{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithMetrics reports the handler's per-call budget allocation into m.
func WithMetrics(m Metrics) Option {
	return func(c *handlerConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// failureSentinel is the sentinel substring §3/§9 describe: a handler
// embeds it in the body when the whole operation should be treated as
// an error, and the dispatcher's domain.ResponseShape detects it
// without needing to understand Markdown.
const failureSentinel = "# ❌"

// allFailedBody renders the fallback-error body used when every item
// in a batch failed, per §4.6 "Handlers must never propagate an
// exception" and §7's fallback-error-body requirement.
func allFailedBody(toolLabel string, firstErr *domain.ClassifiedError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s failed\n\n", failureSentinel, toolLabel)
	if firstErr != nil {
		fmt.Fprintf(&b, "%s: %s", firstErr.Kind, firstErr.Message)
		if firstErr.Retryable {
			b.WriteString("\n\nThis error may be temporary.")
		}
	}
	return b.String()
}
