package handlers

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/yigitkonur/research-powerpack-mcp/internal/domain"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/adapters/search"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/validate"
)

const (
	minKeywords = 1
	maxKeywords = 10
)

// SearchAdapter is the subset of *search.Adapter the web-search
// handlers depend on, narrowed to an interface so tests can supply a
// stub provider (§4.6 step 3/4: "build task list" / "run").
type SearchAdapter interface {
	SearchBatch(ctx context.Context, queries []string) []domain.SearchQueryResult
	SearchRedditBatch(ctx context.Context, queries []string, dateFilter string) []domain.SearchQueryResult
}

var _ SearchAdapter = (*search.Adapter)(nil)

// NewWebSearchHandler builds the "web_search" tool's handler (§4.6,
// scenario 1/2 of §8): batched general web search over up to
// maxKeywords keywords, formatted as one Markdown section per keyword.
func NewWebSearchHandler(adapter SearchAdapter, logger *zap.Logger) domain.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("web_search")

	return func(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
		keywords := validate.StringSlice(args, "keywords")
		if len(keywords) < minKeywords || len(keywords) > maxKeywords {
			return domain.ToolResult{}, domain.NewClassifiedError(domain.KindInvalidInput,
				fmt.Sprintf("keywords must contain between %d and %d items", minKeywords, maxKeywords), 0, nil)
		}

		results := adapter.SearchBatch(ctx, keywords)

		c := newCounters()
		totalResults := 0
		var firstErr *domain.ClassifiedError
		var body strings.Builder

		for _, r := range results {
			if r.Err != nil {
				c.fail()
				if firstErr == nil {
					firstErr = r.Err
				}
				fmt.Fprintf(&body, "## %q\n\n❌ %s: %s\n\n", r.Query, r.Err.Kind, r.Err.Message)
				continue
			}
			c.ok()
			totalResults += len(r.Results)
			fmt.Fprintf(&body, "## %q (%d results)\n\n", r.Query, r.TotalResults)
			for _, hit := range r.Results {
				fmt.Fprintf(&body, "- [%s](%s)\n  %s\n", hit.Title, hit.URL, hit.Snippet)
			}
			if len(r.RelatedQueries) > 0 {
				fmt.Fprintf(&body, "\n**Related:** %s\n", strings.Join(r.RelatedQueries, ", "))
			}
			body.WriteString("\n")
		}

		logger.Info("web_search completed", zap.Int("keywords", len(keywords)), zap.Int("succeeded", c.succeeded), zap.Int("failed", c.failed))

		if c.succeeded == 0 {
			return domain.ToolResult{Text: allFailedBody("Web search", firstErr), IsError: true}, nil
		}

		var out strings.Builder
		out.WriteString("# Web Search Results\n\n")
		fmt.Fprintf(&out, "%s across %d keyword(s), %d total results\n\n", c.summaryLine(len(keywords)), len(keywords), totalResults)
		out.WriteString(body.String())
		return domain.ToolResult{Text: out.String()}, nil
	}
}
