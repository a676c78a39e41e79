// Package reddit implements the Reddit provider adapter (§4.5): OAuth
// client-credentials token management with single-flight refresh, a
// per-URL thread fetch, and depth-capped comment-tree flattening.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yigitkonur/research-powerpack-mcp/internal/domain"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/classify"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/fanout"
	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/retry"
)

const (
	defaultRequestTimeout = 30 * time.Second
	oauthTokenURL         = "https://www.reddit.com/api/v1/access_token"
	apiBaseURL            = "https://oauth.reddit.com"
	// maxCommentDepth caps the flattened comment tree (§4.5): deeper
	// replies are dropped rather than walked indefinitely.
	maxCommentDepth = 10
	// MaxInFlight bounds concurrent thread fetches (§5).
	MaxInFlight = 20
)

// Metrics is the subset of the Prometheus surface this adapter reports
// into, across both the fan-out and retry layers. Satisfied by
// *metrics.PROC.
type Metrics interface {
	fanout.Metrics
	retry.Metrics
}

// Adapter wraps Reddit's OAuth-gated JSON API.
type Adapter struct {
	clientID     string
	clientSecret string
	userAgent    string
	tokenURL     string
	apiBaseURL   string
	client       *http.Client
	logger       *zap.Logger
	tokens       *tokenCache
	metrics      Metrics
}

// WithMetrics attaches a Prometheus sink (typically *metrics.PROC) that
// fan-out and retries both report into under the "reddit" label.
func (a *Adapter) WithMetrics(m Metrics) *Adapter {
	a.metrics = m
	return a
}

// New constructs a Reddit adapter using OAuth2 client-credentials
// (the "installed app"/script-app grant Reddit requires for read-only
// API access).
func New(clientID, clientSecret, userAgent string, logger *zap.Logger) *Adapter {
	return NewWithEndpoints(clientID, clientSecret, userAgent, oauthTokenURL, apiBaseURL, logger)
}

// NewWithEndpoints is New with the OAuth and API hosts overridden,
// used by tests to point the adapter at an httptest.Server instead of
// live reddit.com.
func NewWithEndpoints(clientID, clientSecret, userAgent, tokenURL, apiURL string, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if userAgent == "" {
		userAgent = "research-powerpack-mcp/1.0"
	}
	a := &Adapter{
		clientID:     clientID,
		clientSecret: clientSecret,
		userAgent:    userAgent,
		tokenURL:     tokenURL,
		apiBaseURL:   apiURL,
		client:       &http.Client{Timeout: defaultRequestTimeout},
		logger:       logger.Named("reddit_adapter"),
	}
	a.tokens = newTokenCache(a.fetchToken)
	return a
}

// RetryPolicy is the provider-tuned policy from §4.2: Reddit treats
// {429, 500, 502, 503, 504} as retryable and 401 as permanent. A 401
// is returned to the caller as is: FetchThread does not refresh the
// cached token on it, the token cache only renews a token that is
// near its expiry.
func RetryPolicy() domain.RetryPolicy {
	return domain.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   300 * time.Millisecond,
		MaxDelay:    6 * time.Second,
		Multiplier:  2,
		JitterRatio: 0.25,
		RetryablePredicate: func(ce *domain.ClassifiedError) bool {
			switch ce.HTTPStatus {
			case 429, 500, 502, 503, 504:
				return true
			case 401, 403:
				return false
			}
			return ce.Retryable
		},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (a *Adapter) fetchToken(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, domain.NewClassifiedError(domain.KindInternal, "build oauth request", 0, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", a.userAgent)
	req.SetBasicAuth(a.clientID, a.clientSecret)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", 0, classify.Classify(err, 0)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, classify.Classify(err, 0)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, classify.HTTPStatus(resp.StatusCode, fmt.Errorf("reddit oauth: %s", truncateBody(raw)))
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return "", 0, domain.NewClassifiedError(domain.KindParse, "decode oauth response: "+err.Error(), resp.StatusCode, err)
	}
	return tr.AccessToken, time.Duration(tr.ExpiresIn) * time.Second, nil
}

var postURLPattern = regexp.MustCompile(`/comments/([a-z0-9]+)`)

// postID extracts the base36 post ID from any of Reddit's URL shapes
// (old.reddit.com, www.reddit.com, share links with a trailing slug).
func postID(postURL string) (string, bool) {
	m := postURLPattern.FindStringSubmatch(postURL)
	if len(m) != 2 {
		return "", false
	}
	return m[1], true
}

// FetchBatch fetches every thread URL concurrently (capped at
// MaxInFlight), allocating allocatedComments comments to each thread
// up front (the caller is expected to have computed this via C4).
func (a *Adapter) FetchBatch(ctx context.Context, urls []string, allocatedComments int) []domain.RedditThreadResponse {
	if len(urls) == 0 {
		return nil
	}
	results := fanout.Run(ctx, urls, MaxInFlight, func(ctx context.Context, u string) (domain.RedditThreadResponse, error) {
		return a.FetchThread(ctx, u, allocatedComments), nil
	}, fanout.WithMetrics(a.metrics, "reddit"))
	out := make([]domain.RedditThreadResponse, len(results))
	for i, r := range results {
		out[i] = r.Value
	}
	return out
}

// FetchThread fetches one post plus its comment tree, flattens the
// tree, and caps it at allocatedComments. A malformed URL is reported
// as an InvalidInput classified error rather than attempted.
func (a *Adapter) FetchThread(ctx context.Context, postURL string, allocatedComments int) domain.RedditThreadResponse {
	id, ok := postID(postURL)
	if !ok {
		ce := domain.NewClassifiedError(domain.KindInvalidInput, "not a reddit post URL: "+postURL, 0, nil)
		ce.Retryable = false
		return domain.RedditThreadResponse{Err: ce}
	}

	listing, ce := retry.Run(ctx, a.logger, RetryPolicy(), func(ctx context.Context) (rawListing, error) {
		return a.fetchListing(ctx, id)
	}, retry.WithMetrics(a.metrics, "reddit"))
	if ce != nil {
		return domain.RedditThreadResponse{Err: ce}
	}

	meta := listing.post
	comments := flattenComments(listing.comments, maxCommentDepth)
	if allocatedComments > 0 && len(comments) > allocatedComments {
		comments = comments[:allocatedComments]
	}

	return domain.RedditThreadResponse{
		PostMetadata:      meta,
		Comments:          comments,
		AllocatedComments: allocatedComments,
	}
}

type rawListing struct {
	post     domain.RedditPostMetadata
	comments []rawCommentNode
}

// rawCommentNode mirrors one node of Reddit's nested comment-tree JSON
// before flattening.
type rawCommentNode struct {
	ID       string
	Author   string
	Body     string
	Score    int
	Deleted  bool
	Children []rawCommentNode
}

func (a *Adapter) fetchListing(ctx context.Context, id string) (rawListing, error) {
	token, err := a.tokens.Get(ctx)
	if err != nil {
		ce, ok := domain.AsClassifiedError(err)
		if ok {
			return rawListing{}, ce
		}
		return rawListing{}, classify.Classify(err, 0)
	}

	reqURL := fmt.Sprintf("%s/comments/%s?limit=500&depth=%d", a.apiBaseURL, id, maxCommentDepth)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return rawListing{}, domain.NewClassifiedError(domain.KindInternal, "build reddit request", 0, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return rawListing{}, classify.Classify(err, 0)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return rawListing{}, classify.Classify(err, 0)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return rawListing{}, classify.HTTPStatus(resp.StatusCode, fmt.Errorf("reddit api: %s", truncateBody(raw)))
	}

	return parseListingJSON(raw)
}

func truncateBody(b []byte) string {
	const max = 300
	if len(b) > max {
		return string(b[:max])
	}
	return string(b)
}

// flattenComments walks the nested reply tree depth-first,
// parent-before-child, with siblings ordered by descending score at
// every level, stopping at maxDepth and dropping nodes whose author
// was deleted (§4.5). Depth is recorded on each flattened comment.
func flattenComments(nodes []rawCommentNode, maxDepth int) []domain.RedditComment {
	var out []domain.RedditComment
	var walk func(nodes []rawCommentNode, depth int, parentID string)
	walk = func(nodes []rawCommentNode, depth int, parentID string) {
		if depth > maxDepth {
			return
		}
		sorted := make([]rawCommentNode, len(nodes))
		copy(sorted, nodes)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

		for _, n := range sorted {
			if n.Deleted || n.Author == "" || n.Author == "[deleted]" {
				continue
			}
			out = append(out, domain.RedditComment{
				ID:       n.ID,
				Author:   n.Author,
				Body:     n.Body,
				Score:    n.Score,
				Depth:    depth,
				ParentID: parentID,
			})
			if len(n.Children) > 0 {
				walk(n.Children, depth+1, n.ID)
			}
		}
	}
	walk(nodes, 0, "")
	return out
}
