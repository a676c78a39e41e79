package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/yigitkonur/research-powerpack-mcp/internal/domain"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/adapters/scraper"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/validate"
)

const (
	minScrapeURLs = 1
	maxScrapeURLs = 30
)

// ScraperAdapter is the subset of *scraper.Adapter the handler depends
// on.
type ScraperAdapter interface {
	ScrapeBatch(ctx context.Context, urls []string) []domain.ScrapeResponse
}

var _ ScraperAdapter = (*scraper.Adapter)(nil)

// NewScrapeURLsHandler builds the "scrape_urls" tool handler (§4.5,
// §8 scenario 4): fetches each URL through the scraper's fallback
// ladder, batched under C3's own concurrency cap.
func NewScrapeURLsHandler(adapter ScraperAdapter, logger *zap.Logger) domain.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scrape_urls")

	return func(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
		urls := validate.StringSlice(args, "urls")
		if len(urls) < minScrapeURLs || len(urls) > maxScrapeURLs {
			return domain.ToolResult{}, domain.NewClassifiedError(domain.KindInvalidInput,
				fmt.Sprintf("urls must contain between %d and %d items", minScrapeURLs, maxScrapeURLs), 0, nil)
		}

		results := adapter.ScrapeBatch(ctx, urls)

		c := newCounters()
		var firstErr *domain.ClassifiedError
		var body strings.Builder
		for _, r := range results {
			if r.Err != nil {
				c.fail()
				if firstErr == nil {
					firstErr = r.Err
				}
				fmt.Fprintf(&body, "## ❌ %s\n\n%s: %s", r.URL, r.Err.Kind, r.Err.Message)
				if r.Err.Kind == domain.KindAuth {
					body.WriteString("\n\nCheck that SCRAPER_API_KEY is a valid, active key — this is a missing environment variable/credential style failure.")
				}
				body.WriteString("\n\n")
				continue
			}
			// A 404 is a valid terminal result, not a failure (§4.5):
			// it counts toward success, it just has no content.
			if r.StatusCode == http.StatusNotFound {
				c.ok()
				fmt.Fprintf(&body, "## %s (not found)\n\nThe page returned HTTP 404.\n\n", r.URL)
				continue
			}
			c.ok()
			c.add("credits", r.CreditsConsumed)
			fmt.Fprintf(&body, "## %s (mode: %s, %d credits)\n\n%s\n\n", r.URL, r.ModeUsed, r.CreditsConsumed, r.Content)
		}

		logger.Info("scrape_urls completed", zap.Int("urls", len(urls)), zap.Int("succeeded", c.succeeded),
			zap.Int("failed", c.failed), zap.Int("credits", c.extra["credits"]))

		if c.succeeded == 0 {
			text := allFailedBody("Scrape", firstErr)
			if firstErr != nil && firstErr.Kind == domain.KindAuth {
				text += "\n\nCheck that SCRAPER_API_KEY is a valid, active key — this is a missing environment variable/credential style failure."
			}
			return domain.ToolResult{Text: text, IsError: true}, nil
		}

		var out strings.Builder
		out.WriteString("# Scrape Results\n\n")
		fmt.Fprintf(&out, "%s across %d URL(s), %d credits consumed\n\n", c.summaryLine(len(urls)), len(urls), c.extra["credits"])
		out.WriteString(body.String())
		return domain.ToolResult{Text: out.String()}, nil
	}
}
