// Package search implements the Search provider adapter (§4.5): a
// batched Google-search proxy call plus a Reddit-scoped variant that
// appends a site filter to each query.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/yigitkonur/research-powerpack-mcp/internal/domain"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/classify"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/retry"
)

const defaultRequestTimeout = 30 * time.Second

// Adapter wraps the batched search proxy behind a single call
// operation. It has no retry loop of its own: SearchBatch runs that
// one call through the Retry Engine (C2) under RetryPolicy below.
type Adapter struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
	metrics retry.Metrics
}

// New constructs a Search adapter. baseURL defaults to the provider's
// batched-search endpoint when empty.
func New(apiKey, baseURL string, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseURL == "" {
		baseURL = "https://search-proxy.internal/v1/search"
	}
	return &Adapter{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultRequestTimeout},
		logger:  logger.Named("search_adapter"),
	}
}

// WithMetrics attaches a Prometheus sink (typically *metrics.PROC) that
// every retried call reports into under the "search" provider label.
func (a *Adapter) WithMetrics(m retry.Metrics) *Adapter {
	a.metrics = m
	return a
}

// RetryPolicy is the provider-tuned policy from §4.2: Search treats
// {429, 500, 502, 503, 504} as retryable.
func RetryPolicy() domain.RetryPolicy {
	return domain.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    4 * time.Second,
		Multiplier:  2,
		JitterRatio: 0.25,
		RetryablePredicate: func(ce *domain.ClassifiedError) bool {
			switch ce.HTTPStatus {
			case 429, 500, 502, 503, 504:
				return true
			case 400, 401, 403:
				return false
			}
			return ce.Retryable
		},
	}
}

type batchRequest struct {
	Queries []string `json:"queries"`
}

type rawSubResponse struct {
	Query          string   `json:"query"`
	Results        []rawHit `json:"results"`
	TotalResults   int      `json:"total_results"`
	RelatedQueries []string `json:"related_queries"`
}

type rawHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type batchResponse struct {
	Responses []rawSubResponse `json:"responses"`
}

// rawBatchEnvelope defers decoding each sub-response so one malformed
// element can't fail the whole batch (§4.5).
type rawBatchEnvelope struct {
	Responses []json.RawMessage `json:"responses"`
}

// SearchBatch issues one HTTP POST with a batched payload (one entry
// per query) and maps the batched response position-wise back onto
// one domain.SearchQueryResult per query. Empty input returns empty
// output without making a call; the adapter never throws — a
// malformed sub-response at position i becomes an empty entry at i
// rather than failing the whole batch.
func (a *Adapter) SearchBatch(ctx context.Context, queries []string) []domain.SearchQueryResult {
	if len(queries) == 0 {
		return nil
	}

	result, ce := retry.Run(ctx, a.logger, RetryPolicy(), func(ctx context.Context) (batchResponse, error) {
		return a.doBatch(ctx, queries)
	}, retry.WithMetrics(a.metrics, "search"))
	if ce != nil {
		out := make([]domain.SearchQueryResult, len(queries))
		for i, q := range queries {
			out[i] = domain.SearchQueryResult{Query: q, Err: ce}
		}
		return out
	}

	out := make([]domain.SearchQueryResult, len(queries))
	for i, q := range queries {
		if i >= len(result.Responses) {
			out[i] = domain.SearchQueryResult{Query: q}
			continue
		}
		raw := result.Responses[i]
		hits := make([]domain.SearchResult, 0, len(raw.Results))
		for _, h := range raw.Results {
			hits = append(hits, domain.SearchResult{Title: h.Title, URL: h.URL, Snippet: h.Snippet})
		}
		out[i] = domain.SearchQueryResult{
			Query:          q,
			Results:        hits,
			TotalResults:   raw.TotalResults,
			RelatedQueries: raw.RelatedQueries,
		}
	}
	return out
}

// SearchRedditBatch appends a site:reddit.com filter (and, when
// dateFilter is non-empty, a date-range term) to every query before
// delegating to the same batched call (§4.5).
func (a *Adapter) SearchRedditBatch(ctx context.Context, queries []string, dateFilter string) []domain.SearchQueryResult {
	if len(queries) == 0 {
		return nil
	}
	scoped := make([]string, len(queries))
	for i, q := range queries {
		s := q + " site:reddit.com"
		if dateFilter != "" {
			s += " " + dateFilter
		}
		scoped[i] = s
	}
	results := a.SearchBatch(ctx, scoped)
	for i := range results {
		results[i].Query = queries[i]
	}
	return results
}

func (a *Adapter) doBatch(ctx context.Context, queries []string) (batchResponse, error) {
	body, err := json.Marshal(batchRequest{Queries: queries})
	if err != nil {
		return batchResponse{}, domain.NewClassifiedError(domain.KindInternal, "encode search request", 0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return batchResponse{}, domain.NewClassifiedError(domain.KindInternal, "build search request", 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return batchResponse{}, classify.Classify(err, 0)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return batchResponse{}, classify.Classify(err, 0)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return batchResponse{}, classify.HTTPStatus(resp.StatusCode, fmt.Errorf("search proxy: %s", truncateBody(raw)))
	}

	var envelope rawBatchEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return batchResponse{}, domain.NewClassifiedError(domain.KindParse, "decode search response: "+err.Error(), resp.StatusCode, err)
	}

	out := batchResponse{Responses: make([]rawSubResponse, len(envelope.Responses))}
	for i, elem := range envelope.Responses {
		var sub rawSubResponse
		if err := json.Unmarshal(elem, &sub); err != nil {
			a.logger.Warn("malformed sub-response, substituting empty entry", zap.Int("position", i), zap.Error(err))
			continue
		}
		out.Responses[i] = sub
	}
	return out, nil
}

func truncateBody(b []byte) string {
	const max = 300
	if len(b) > max {
		return string(b[:max])
	}
	return string(b)
}

// BuildURL is exposed for tests that want to verify query-string
// escaping without making a network call.
func BuildURL(base string, params url.Values) string {
	if len(params) == 0 {
		return base
	}
	return base + "?" + params.Encode()
}
