package handlers

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/yigitkonur/research-powerpack-mcp/internal/domain"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/adapters/llm"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/validate"
)

const (
	minExtractionItems = 1
	maxExtractionItems = 10
)

// NewLLMExtractionHandler builds the "llm_extraction" tool handler
// (§4.5, §6): applies a fixed extraction instruction against a batch
// of content items, one completion per item, splitting the same
// per-process token budget the way deep_research does. It is
// gated by the llm_extraction capability rather than deep_research's
// so the two can be pointed at different models (RESEARCH_MODEL vs.
// LLM_EXTRACTION_MODEL) even though both share the LLM adapter.
func NewLLMExtractionHandler(adapter LLMAdapter, totalTokenBudget int, logger *zap.Logger, opts ...Option) domain.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("llm_extraction")
	if totalTokenBudget <= 0 {
		totalTokenBudget = defaultTokenBudget
	}
	cfg := newHandlerConfig(opts)

	return func(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
		items := validate.ObjectSlice(args, "items")
		if len(items) < minExtractionItems || len(items) > maxExtractionItems {
			return domain.ToolResult{}, domain.NewClassifiedError(domain.KindInvalidInput,
				fmt.Sprintf("items must contain between %d and %d items", minExtractionItems, maxExtractionItems), 0, nil)
		}

		allocation := domain.AllocateTokens(totalTokenBudget, len(items))
		cfg.metrics.BudgetAllocated("llm_extraction", allocation.PerItem)

		questions := make([]llm.Question, len(items))
		for i, item := range items {
			questions[i] = llm.Question{
				Question:  validate.StringOr(item, "instruction", ""),
				Content:   validate.StringOr(item, "content", ""),
				MaxTokens: allocation.PerItem,
			}
		}

		results := adapter.ExtractBatch(ctx, questions)

		c := newCounters()
		var firstErr *domain.ClassifiedError
		var body strings.Builder
		for _, r := range results {
			if !r.Processed {
				c.fail()
				if firstErr == nil {
					firstErr = r.Err
				}
				fmt.Fprintf(&body, "## %q\n\n❌ not processed: %s\n\n", r.Question, r.Err.Message)
				continue
			}
			c.ok()
			c.add("tokens", r.TokensUsed)
			fmt.Fprintf(&body, "## %q\n\n%s\n\n_%d tokens used_\n\n", r.Question, r.Content, r.TokensUsed)
		}

		logger.Info("llm_extraction completed", zap.Int("items", len(items)),
			zap.Int("succeeded", c.succeeded), zap.Int("failed", c.failed), zap.Int("per_item_tokens", allocation.PerItem))

		if c.succeeded == 0 {
			return domain.ToolResult{Text: allFailedBody("LLM extraction", firstErr), IsError: true}, nil
		}

		var out strings.Builder
		out.WriteString("# LLM Extraction Results\n\n")
		fmt.Fprintf(&out, "%s across %d item(s)\n\n", c.summaryLine(len(items)), len(items))
		fmt.Fprintf(&out, "**Token Allocation:** %d tokens/item (budget %d)\n\n", allocation.PerItem, allocation.Total)
		out.WriteString(body.String())
		return domain.ToolResult{Text: out.String()}, nil
	}
}
