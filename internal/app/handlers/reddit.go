package handlers

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/yigitkonur/research-powerpack-mcp/internal/domain"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/adapters/reddit"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/validate"
)

const (
	minRedditURLs = 2
	maxRedditURLs = 50
	// defaultCommentCeiling is the provider-imposed per-request ceiling
	// used in §4.4's and §8 scenario 5's worked example (1000 budget /
	// 10 posts capped at 500/post never binds; 1000/2 = 500 does).
	defaultCommentCeiling = 500
)

// RedditAdapter is the subset of *reddit.Adapter the handler depends
// on.
type RedditAdapter interface {
	FetchBatch(ctx context.Context, urls []string, allocatedComments int) []domain.RedditThreadResponse
}

var _ RedditAdapter = (*reddit.Adapter)(nil)

// NewFetchRedditThreadsHandler builds the "fetch_reddit_threads" tool
// handler (§4.4, §8 scenario 5): allocates a fixed comment budget
// across the requested thread URLs and fetches each one.
func NewFetchRedditThreadsHandler(adapter RedditAdapter, totalCommentBudget int, logger *zap.Logger, opts ...Option) domain.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("fetch_reddit_threads")
	if totalCommentBudget <= 0 {
		totalCommentBudget = 1000
	}
	cfg := newHandlerConfig(opts)

	return func(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
		urls := validate.StringSlice(args, "urls")
		if len(urls) < minRedditURLs || len(urls) > maxRedditURLs {
			return domain.ToolResult{}, domain.NewClassifiedError(domain.KindInvalidInput,
				fmt.Sprintf("urls must contain between %d and %d items", minRedditURLs, maxRedditURLs), 0, nil)
		}

		allocation := domain.AllocateComments(totalCommentBudget, len(urls), defaultCommentCeiling)
		cfg.metrics.BudgetAllocated("fetch_reddit_threads", allocation.PerItemCapped)
		results := adapter.FetchBatch(ctx, urls, allocation.PerItemCapped)

		c := newCounters()
		var firstErr *domain.ClassifiedError
		var body strings.Builder
		for _, r := range results {
			if r.Err != nil {
				c.fail()
				if firstErr == nil {
					firstErr = r.Err
				}
				fmt.Fprintf(&body, "## ❌ %s\n\n%s: %s\n\n", r.PostMetadata.URL, r.Err.Kind, r.Err.Message)
				continue
			}
			c.ok()
			fmt.Fprintf(&body, "## %s (r/%s, score %d)\n\n", r.PostMetadata.Title, r.PostMetadata.Subreddit, r.PostMetadata.Score)
			fmt.Fprintf(&body, "%d comments fetched of %d total\n\n", len(r.Comments), r.PostMetadata.NumComments)
			for _, cm := range r.Comments {
				fmt.Fprintf(&body, "%s- **%s** (score %d): %s\n", strings.Repeat("  ", cm.Depth), cm.Author, cm.Score, cm.Body)
			}
			body.WriteString("\n")
		}

		logger.Info("fetch_reddit_threads completed",
			zap.Int("urls", len(urls)), zap.Int("succeeded", c.succeeded), zap.Int("failed", c.failed),
			zap.Int("per_post_comments", allocation.PerItemCapped))

		if c.succeeded == 0 {
			return domain.ToolResult{Text: allFailedBody("Reddit thread fetch", firstErr), IsError: true}, nil
		}

		var out strings.Builder
		out.WriteString("# Reddit Threads\n\n")
		fmt.Fprintf(&out, "%s across %d URL(s)\n\n", c.summaryLine(len(urls)), len(urls))
		fmt.Fprintf(&out, "**Comment Allocation:** %d comments/post (uncapped %d, ceiling %d)\n\n",
			allocation.PerItemCapped, allocation.PerItemUncapped, allocation.RequestCeiling)
		out.WriteString(body.String())
		return domain.ToolResult{Text: out.String()}, nil
	}
}
