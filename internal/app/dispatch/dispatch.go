// Package dispatch implements the Capability Registry / Dispatcher
// (C7): an in-memory tool table built once at startup and a single
// execute operation that never lets a tool invocation crash the
// process (P3), per §4.7.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yigitkonur/research-powerpack-mcp/internal/domain"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/classify"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/validate"
)

// Metrics is the subset of the Prometheus surface the dispatcher
// reports into. Satisfied by *metrics.PROC; kept as a narrow interface
// here so dispatch never imports the metrics package directly.
type Metrics interface {
	ToolInvoked(tool string, isError bool, d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ToolInvoked(string, bool, time.Duration) {}

// Registry is the immutable tool table (§3 "a descriptor's schema and
// handler are fixed for the process lifetime").
type Registry struct {
	tools        map[string]domain.ToolDescriptor
	capabilities domain.Capabilities
	logger       *zap.Logger
	metrics      Metrics
}

// NewRegistry builds a Registry from a fixed descriptor set and the
// process-wide capability map. Both are computed once at startup by
// the tool-file loader and never mutated afterward.
func NewRegistry(descriptors []domain.ToolDescriptor, capabilities domain.Capabilities, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	tools := make(map[string]domain.ToolDescriptor, len(descriptors))
	for _, d := range descriptors {
		tools[d.Name] = d
	}
	return &Registry{tools: tools, capabilities: capabilities, logger: logger.Named("dispatch"), metrics: noopMetrics{}}
}

// WithMetrics attaches a Prometheus recorder, reporting tool outcome
// and latency on every Execute call for a registered tool name
// (unknown names are not recorded). Optional: a Registry built
// without it records nothing.
func (r *Registry) WithMetrics(m Metrics) *Registry {
	if m != nil {
		r.metrics = m
	}
	return r
}

// Descriptors returns the registered tool table, used by the
// transport adapter to advertise the tool list.
func (r *Registry) Descriptors() []domain.ToolDescriptor {
	out := make([]domain.ToolDescriptor, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d)
	}
	return out
}

// Execute runs the full dispatch pipeline of §4.7: lookup, capability
// gate, schema validation, optional post-validation, handler
// invocation, response shaping. It never returns a Go error for a
// tool-layer fault — only domain.ErrUnknownTool ever propagates, per
// §4.7 step 1 ("the only path that propagates as a protocol-level
// fault"). Every other failure becomes an in-band ToolResult with
// IsError set (P3).
func (r *Registry) Execute(ctx context.Context, toolName string, args map[string]any) (result domain.ToolResult, err error) {
	invocationID := uuid.NewString()
	start := time.Now()
	logger := r.logger.With(zap.String("invocation_id", invocationID), zap.String("tool", toolName))

	descriptor, ok := r.tools[toolName]
	if !ok {
		logger.Warn("unknown tool requested")
		return domain.ToolResult{}, fmt.Errorf("%w: %s", domain.ErrUnknownTool, toolName)
	}
	defer func() {
		r.metrics.ToolInvoked(toolName, result.IsError, time.Since(start))
	}()

	if !r.capabilities.Enabled(descriptor.Capability) {
		logger.Info("tool call rejected, capability disabled", zap.String("capability", string(descriptor.Capability)))
		return errorResult(missingCapabilityMessage(descriptor.Capability)), nil
	}

	if issues := validate.Args(descriptor.Schema, args); len(issues) > 0 {
		logger.Info("schema validation failed", zap.Int("issue_count", len(issues)))
		return errorResult("# ❌ Invalid arguments\n\n" + strings.Join(issues, "\n")), nil
	}

	if descriptor.PostValidate != nil {
		if err := descriptor.PostValidate(args); err != nil {
			logger.Info("post-validation failed", zap.Error(err))
			return errorResult(fmt.Sprintf("# ❌ Invalid arguments\n\n%s", err.Error())), nil
		}
	}

	result = r.invokeHandler(ctx, logger, descriptor, args)

	if descriptor.ResponseShape != nil && descriptor.ResponseShape.IsError(result.Text) {
		result.IsError = true
	}

	elapsed := time.Since(start)
	logger.Info("tool call completed", zap.Duration("elapsed", elapsed), zap.Bool("is_error", result.IsError))
	return result, nil
}

// invokeHandler calls the handler, recovering any panic and folding
// it into an in-band error result the same way C3 folds a task panic
// into a FanoutResult — a handler must never be able to crash the
// dispatcher (P3).
func (r *Registry) invokeHandler(ctx context.Context, logger *zap.Logger, descriptor domain.ToolDescriptor, args map[string]any) (result domain.ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			ce := classify.Classify(fmt.Errorf("handler panic: %v", rec), 0)
			logger.Error("handler panicked", zap.Any("recovered", rec))
			result = errorResult(formatClassifiedError(ce))
		}
	}()

	res, err := descriptor.Handler(ctx, args)
	if err != nil {
		ce, ok := domain.AsClassifiedError(err)
		if !ok {
			ce = classify.Classify(err, 0)
		}
		logger.Error("handler returned error", zap.String("kind", string(ce.Kind)))
		return errorResult(formatClassifiedError(ce))
	}
	return res
}

func errorResult(text string) domain.ToolResult {
	return domain.ToolResult{Text: text, IsError: true}
}

// missingCapabilityMessage renders §7's "pointer to the specific
// missing environment variable" requirement for capability gating.
func missingCapabilityMessage(cap domain.Capability) string {
	envVar := capabilityEnvVar(cap)
	return fmt.Sprintf("# ❌ Missing configuration\n\nThis tool requires the **%s** capability, which is disabled because %s is not set.", cap, envVar)
}

func capabilityEnvVar(cap domain.Capability) string {
	switch cap {
	case domain.CapabilitySearch:
		return "SEARCH_API_KEY"
	case domain.CapabilityReddit:
		return "REDDIT_CLIENT_ID and REDDIT_CLIENT_SECRET"
	case domain.CapabilityScraping:
		return "SCRAPER_API_KEY"
	case domain.CapabilityDeepResearch, domain.CapabilityLLMExtraction:
		return "LLM_API_KEY"
	default:
		return "the required environment variable"
	}
}

// formatClassifiedError renders §7's user-visible failure contract:
// error kind, short message, a retryable hint, and (for Auth/Quota
// errors) a nudge toward capability configuration.
func formatClassifiedError(ce *domain.ClassifiedError) string {
	var b strings.Builder
	b.WriteString("# ❌ ")
	b.WriteString(string(ce.Kind))
	b.WriteString("\n\n")
	b.WriteString(ce.Message)
	if ce.Retryable {
		b.WriteString("\n\nThis error may be temporary.")
	}
	if ce.Kind == domain.KindAuth || ce.Kind == domain.KindQuotaExceeded {
		b.WriteString("\n\nCheck that the relevant API key environment variable is set and valid.")
	}
	return b.String()
}
