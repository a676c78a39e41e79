// Package scraper implements the Scraper provider adapter (§4.5): a
// three-rung fallback ladder (basic -> javascript -> javascript+geo)
// per URL, batched across URLs through the Bounded Fan-out Executor.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/yigitkonur/research-powerpack-mcp/internal/domain"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/classify"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/fanout"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/retry"
)

const defaultRequestTimeout = 60 * time.Second

// ladder is the fixed escalation order of §4.5: each rung is tried in
// turn only when the previous one fails with a retryable-but-exhausted
// or mode-specific failure; a permanent failure (401/403) short-
// circuits the whole ladder for that URL.
var ladder = []domain.ScrapeMode{
	domain.ScrapeModeBasic,
	domain.ScrapeModeJavaScript,
	domain.ScrapeModeJavaScriptGeo,
}

// Metrics is the subset of the Prometheus surface this adapter reports
// into, across both the fan-out and retry layers. Satisfied by
// *metrics.PROC.
type Metrics interface {
	fanout.Metrics
	retry.Metrics
}

// Adapter wraps the scraping proxy.
type Adapter struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
	metrics Metrics
}

// New constructs a Scraper adapter.
func New(apiKey, baseURL string, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseURL == "" {
		baseURL = "https://scrape-proxy.internal/v1/scrape"
	}
	return &Adapter{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultRequestTimeout},
		logger:  logger.Named("scraper_adapter"),
	}
}

// WithMetrics attaches a Prometheus sink (typically *metrics.PROC) that
// fan-out and retries both report into under the "scraper" label.
func (a *Adapter) WithMetrics(m Metrics) *Adapter {
	a.metrics = m
	return a
}

// RetryPolicy is the provider-tuned policy from §4.2: Scraper treats
// {429, 502, 503, 504, 510} as retryable and {400, 401, 403} as
// permanent regardless of attempts remaining.
func RetryPolicy() domain.RetryPolicy {
	return domain.RetryPolicy{
		MaxAttempts: 2,
		BaseDelay:   300 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2,
		JitterRatio: 0.3,
		RetryablePredicate: func(ce *domain.ClassifiedError) bool {
			switch ce.HTTPStatus {
			case 429, 502, 503, 504, 510:
				return true
			case 400, 401, 403:
				return false
			}
			return ce.Retryable
		},
	}
}

// MaxInFlight is the scraper batch's own concurrency cap (§5):
// scraping is the heaviest per-call provider so it is capped tighter
// than the top-level request fan-out.
const MaxInFlight = 30

// ScrapeBatch fetches every URL concurrently (capped at MaxInFlight)
// through the fallback ladder, returning one ScrapeResponse per URL in
// input order (P1).
func (a *Adapter) ScrapeBatch(ctx context.Context, urls []string) []domain.ScrapeResponse {
	if len(urls) == 0 {
		return nil
	}
	results := fanout.Run(ctx, urls, MaxInFlight, func(ctx context.Context, u string) (domain.ScrapeResponse, error) {
		return a.ScrapeWithFallback(ctx, u), nil
	}, fanout.WithMetrics(a.metrics, "scraper"))
	out := make([]domain.ScrapeResponse, len(results))
	for i, r := range results {
		out[i] = r.Value
		if out[i].URL == "" {
			out[i].URL = urls[i]
		}
	}
	return out
}

// ScrapeWithFallback tries each rung of the ladder in order, stopping
// at the first success or the first permanent failure. When every
// rung is exhausted it returns the last rung's classified error.
func (a *Adapter) ScrapeWithFallback(ctx context.Context, url string) domain.ScrapeResponse {
	var last domain.ScrapeResponse
	for _, mode := range ladder {
		resp, ce := retry.Run(ctx, a.logger, RetryPolicy(), func(ctx context.Context) (domain.ScrapeResponse, error) {
			return a.doScrape(ctx, url, mode)
		}, retry.WithMetrics(a.metrics, "scraper"))
		if ce == nil {
			resp.ModeUsed = mode
			return resp
		}
		last = domain.ScrapeResponse{URL: url, ModeUsed: mode, Err: ce}
		if !ce.Retryable || isPermanentScrapeStatus(ce.HTTPStatus) {
			a.logger.Debug("scrape ladder stopped early on permanent failure",
				zap.String("url", url), zap.String("mode", string(mode)), zap.Int("status", ce.HTTPStatus))
			return last
		}
		a.logger.Debug("scrape rung exhausted, escalating",
			zap.String("url", url), zap.String("mode", string(mode)))
	}
	return last
}

func isPermanentScrapeStatus(status int) bool {
	switch status {
	case 400, 401, 403:
		return true
	default:
		return false
	}
}

type scrapeRequest struct {
	URL  string `json:"url"`
	Mode string `json:"mode"`
}

type scrapeRawResponse struct {
	Content         string `json:"content"`
	CreditsConsumed int    `json:"credits_consumed"`
}

func (a *Adapter) doScrape(ctx context.Context, url string, mode domain.ScrapeMode) (domain.ScrapeResponse, error) {
	body, err := json.Marshal(scrapeRequest{URL: url, Mode: string(mode)})
	if err != nil {
		return domain.ScrapeResponse{}, domain.NewClassifiedError(domain.KindInternal, "encode scrape request", 0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return domain.ScrapeResponse{}, domain.NewClassifiedError(domain.KindInternal, "build scrape request", 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return domain.ScrapeResponse{}, classify.Classify(err, 0)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ScrapeResponse{}, classify.Classify(err, 0)
	}

	// A 404 is a valid terminal "not found" result, not a failure
	// (§4.5): it returns immediately with no error, the same as a 2xx.
	if resp.StatusCode == http.StatusNotFound {
		return domain.ScrapeResponse{URL: url, StatusCode: resp.StatusCode}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.ScrapeResponse{URL: url, StatusCode: resp.StatusCode},
			classify.HTTPStatus(resp.StatusCode, fmt.Errorf("scrape proxy: %s", truncateBody(raw)))
	}

	var out scrapeRawResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.ScrapeResponse{}, domain.NewClassifiedError(domain.KindParse, "decode scrape response: "+err.Error(), resp.StatusCode, err)
	}

	return domain.ScrapeResponse{
		URL:             url,
		Content:         out.Content,
		StatusCode:      resp.StatusCode,
		CreditsConsumed: out.CreditsConsumed,
	}, nil
}

func truncateBody(b []byte) string {
	const max = 300
	if len(b) > max {
		return string(b[:max])
	}
	return string(b)
}
