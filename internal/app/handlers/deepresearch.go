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
	minQuestions       = 1
	maxQuestions       = 10
	defaultTokenBudget = 32000
)

// LLMAdapter is the subset of *llm.Adapter the deep-research handler
// depends on.
type LLMAdapter interface {
	ExtractBatch(ctx context.Context, questions []llm.Question) []domain.LLMExtractionResponse
}

var _ LLMAdapter = (*llm.Adapter)(nil)

// NewDeepResearchHandler builds the "deep_research" tool handler
// (§4.4, §4.5, §8 scenario 6): splits a fixed token budget across up
// to maxQuestions questions, each answered from its own content by the
// LLM adapter. A question whose completion degrades (empty response,
// exhausted retries) is reported individually without failing the
// others; the overall result is only all-failed when every question
// degrades.
func NewDeepResearchHandler(adapter LLMAdapter, totalTokenBudget int, logger *zap.Logger, opts ...Option) domain.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("deep_research")
	if totalTokenBudget <= 0 {
		totalTokenBudget = defaultTokenBudget
	}
	cfg := newHandlerConfig(opts)

	return func(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
		items := validate.ObjectSlice(args, "questions")
		if len(items) < minQuestions || len(items) > maxQuestions {
			return domain.ToolResult{}, domain.NewClassifiedError(domain.KindInvalidInput,
				fmt.Sprintf("questions must contain between %d and %d items", minQuestions, maxQuestions), 0, nil)
		}

		allocation := domain.AllocateTokens(totalTokenBudget, len(items))
		cfg.metrics.BudgetAllocated("deep_research", allocation.PerItem)

		questions := make([]llm.Question, len(items))
		for i, item := range items {
			questions[i] = llm.Question{
				Question:  validate.StringOr(item, "question", ""),
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

		logger.Info("deep_research completed", zap.Int("questions", len(items)),
			zap.Int("succeeded", c.succeeded), zap.Int("failed", c.failed), zap.Int("per_question_tokens", allocation.PerItem))

		if c.succeeded == 0 {
			return domain.ToolResult{Text: allFailedBody("Deep research", firstErr), IsError: true}, nil
		}

		var out strings.Builder
		out.WriteString("# Deep Research Results\n\n")
		fmt.Fprintf(&out, "%s across %d question(s)\n\n", c.summaryLine(len(items)), len(items))
		fmt.Fprintf(&out, "**Token Allocation:** %d tokens/question (budget %d)\n\n", allocation.PerItem, allocation.Total)
		out.WriteString(body.String())
		return domain.ToolResult{Text: out.String()}, nil
	}
}
