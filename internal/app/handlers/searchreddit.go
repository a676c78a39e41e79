package handlers

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/yigitkonur/research-powerpack-mcp/internal/domain"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/validate"
)

// consensusThreshold is the default "appeared in at least N queries"
// bar for the consensus group (§4.6, configurable default 2).
const consensusThreshold = 2

// NewSearchRedditHandler builds the "search_reddit" tool's handler:
// Reddit-scoped search across up to maxKeywords queries, aggregated
// with the CTR-weighted ranking algorithm of §4.6.
func NewSearchRedditHandler(adapter SearchAdapter, logger *zap.Logger) domain.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("search_reddit")

	return func(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
		queries := validate.StringSlice(args, "queries")
		if len(queries) < minKeywords || len(queries) > maxKeywords {
			return domain.ToolResult{}, domain.NewClassifiedError(domain.KindInvalidInput,
				fmt.Sprintf("queries must contain between %d and %d items", minKeywords, maxKeywords), 0, nil)
		}
		dateFilter := validate.StringOr(args, "date_filter", "")

		results := adapter.SearchRedditBatch(ctx, queries, dateFilter)

		c := newCounters()
		var firstErr *domain.ClassifiedError
		for _, r := range results {
			if r.Err != nil {
				c.fail()
				if firstErr == nil {
					firstErr = r.Err
				}
				continue
			}
			c.ok()
		}

		if c.succeeded == 0 {
			return domain.ToolResult{Text: allFailedBody("Reddit search", firstErr), IsError: true}, nil
		}

		consensus, all := RankURLs(results, PositionWeight, consensusThreshold)
		logger.Info("search_reddit completed",
			zap.Int("queries", len(queries)), zap.Int("succeeded", c.succeeded),
			zap.Int("failed", c.failed), zap.Int("unique_urls", len(all)), zap.Int("consensus_urls", len(consensus)))

		var out strings.Builder
		out.WriteString("# Reddit Search Results\n\n")
		fmt.Fprintf(&out, "%s across %d quer%s, %d unique URL(s), %d in consensus\n\n",
			c.summaryLine(len(queries)), len(queries), plural(len(queries)), len(all), len(consensus))

		out.WriteString("## Consensus (appeared in ≥2 queries)\n\n")
		if len(consensus) == 0 {
			out.WriteString("_none_\n\n")
		}
		for _, r := range consensus {
			fmt.Fprintf(&out, "- [%s](%s) — score %.3f, seen in %d queries\n", r.Title, r.URL, r.Score, r.Appearances)
		}

		out.WriteString("\n## All ranked results\n\n")
		for _, r := range all {
			fmt.Fprintf(&out, "- [%s](%s) — score %.3f, seen in %d queries\n", r.Title, r.URL, r.Score, r.Appearances)
		}

		out.WriteString("\n## Per-query raw results\n\n")
		for _, r := range results {
			if r.Err != nil {
				fmt.Fprintf(&out, "### %q\n\n❌ %s: %s\n\n", r.Query, r.Err.Kind, r.Err.Message)
				continue
			}
			fmt.Fprintf(&out, "### %q\n\n", r.Query)
			for _, hit := range r.Results {
				fmt.Fprintf(&out, "- [%s](%s)\n", hit.Title, hit.URL)
			}
			out.WriteString("\n")
		}

		return domain.ToolResult{Text: out.String()}, nil
	}
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
