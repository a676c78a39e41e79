package handlers_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yigitkonur/research-powerpack-mcp/internal/app/handlers"
	"github.com/yigitkonur/research-powerpack-mcp/internal/domain"
)

type stubRedditAdapter struct {
	fetch func(ctx context.Context, urls []string, allocatedComments int) []domain.RedditThreadResponse
}

func (s *stubRedditAdapter) FetchBatch(ctx context.Context, urls []string, allocatedComments int) []domain.RedditThreadResponse {
	return s.fetch(ctx, urls, allocatedComments)
}

func TestFetchRedditThreads_AllocatesCappedCommentBudget(t *testing.T) {
	var gotAllocation int
	adapter := &stubRedditAdapter{
		fetch: func(ctx context.Context, urls []string, allocatedComments int) []domain.RedditThreadResponse {
			gotAllocation = allocatedComments
			out := make([]domain.RedditThreadResponse, len(urls))
			for i, u := range urls {
				out[i] = domain.RedditThreadResponse{PostMetadata: domain.RedditPostMetadata{URL: u, Title: "t"}}
			}
			return out
		},
	}
	h := handlers.NewFetchRedditThreadsHandler(adapter, 1000, zap.NewNop())
	urls := make([]any, 10)
	for i := range urls {
		urls[i] = "https://reddit.com/r/x/comments/abc/"
	}
	res, err := h(context.Background(), map[string]any{"urls": urls})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	// 1000 / 10 = 100, never binds against the 500 ceiling.
	assert.Equal(t, 100, gotAllocation)
	assert.Contains(t, res.Text, "100 comments/post")
}

func TestFetchRedditThreads_CeilingBindsForFewURLs(t *testing.T) {
	var gotAllocation int
	adapter := &stubRedditAdapter{
		fetch: func(ctx context.Context, urls []string, allocatedComments int) []domain.RedditThreadResponse {
			gotAllocation = allocatedComments
			return []domain.RedditThreadResponse{
				{PostMetadata: domain.RedditPostMetadata{URL: urls[0]}},
				{PostMetadata: domain.RedditPostMetadata{URL: urls[1]}},
			}
		},
	}
	h := handlers.NewFetchRedditThreadsHandler(adapter, 1000, zap.NewNop())
	res, err := h(context.Background(), map[string]any{"urls": []any{"https://reddit.com/r/x/comments/a/", "https://reddit.com/r/x/comments/b/"}})
	require.NoError(t, err)
	// 1000 / 2 = 500, bound exactly at the ceiling.
	assert.Equal(t, 500, gotAllocation)
	assert.Contains(t, res.Text, "500 comments/post (uncapped 500, ceiling 500)")
}

func TestFetchRedditThreads_NestedCommentsIndented(t *testing.T) {
	adapter := &stubRedditAdapter{
		fetch: func(ctx context.Context, urls []string, allocatedComments int) []domain.RedditThreadResponse {
			return []domain.RedditThreadResponse{{
				PostMetadata: domain.RedditPostMetadata{URL: urls[0], Title: "post", Subreddit: "golang"},
				Comments: []domain.RedditComment{
					{ID: "c1", Author: "alice", Body: "top", Score: 10, Depth: 0},
					{ID: "c1a", Author: "bob", Body: "reply", Score: 5, Depth: 1, ParentID: "c1"},
				},
			}}
		},
	}
	h := handlers.NewFetchRedditThreadsHandler(adapter, 1000, zap.NewNop())
	res, err := h(context.Background(), map[string]any{"urls": []any{"https://reddit.com/r/x/comments/a/", "https://reddit.com/r/x/comments/b/"}})
	require.NoError(t, err)
	assert.Contains(t, res.Text, "alice")
	assert.Contains(t, res.Text, "  - **bob**")
}

func TestFetchRedditThreads_PartialFailureStillSucceeds(t *testing.T) {
	adapter := &stubRedditAdapter{
		fetch: func(ctx context.Context, urls []string, allocatedComments int) []domain.RedditThreadResponse {
			return []domain.RedditThreadResponse{
				{PostMetadata: domain.RedditPostMetadata{URL: urls[0]}},
				{Err: domain.NewClassifiedError(domain.KindInvalidInput, "not a reddit post url", 0, nil)},
			}
		},
	}
	h := handlers.NewFetchRedditThreadsHandler(adapter, 1000, zap.NewNop())
	res, err := h(context.Background(), map[string]any{"urls": []any{"https://reddit.com/r/x/comments/a/", "https://example.com"}})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, res.Text, "1/2 succeeded")
}

func TestFetchRedditThreads_TooFewURLsIsInvalidInput(t *testing.T) {
	h := handlers.NewFetchRedditThreadsHandler(&stubRedditAdapter{}, 1000, zap.NewNop())
	_, err := h(context.Background(), map[string]any{"urls": []any{"https://reddit.com/r/x/comments/a/"}})
	require.Error(t, err)
}

type stubHandlerMetrics struct {
	tool    string
	perItem int
}

func (s *stubHandlerMetrics) BudgetAllocated(tool string, perItem int) {
	s.tool, s.perItem = tool, perItem
}

func TestFetchRedditThreads_ReportsBudgetAllocationToMetrics(t *testing.T) {
	m := &stubHandlerMetrics{}
	adapter := &stubRedditAdapter{
		fetch: func(ctx context.Context, urls []string, allocatedComments int) []domain.RedditThreadResponse {
			out := make([]domain.RedditThreadResponse, len(urls))
			for i, u := range urls {
				out[i] = domain.RedditThreadResponse{PostMetadata: domain.RedditPostMetadata{URL: u}}
			}
			return out
		},
	}
	h := handlers.NewFetchRedditThreadsHandler(adapter, 1000, zap.NewNop(), handlers.WithMetrics(m))
	urls := []any{"https://reddit.com/r/x/comments/a/", "https://reddit.com/r/x/comments/b/"}
	_, err := h(context.Background(), map[string]any{"urls": urls})
	require.NoError(t, err)
	assert.Equal(t, "fetch_reddit_threads", m.tool)
	assert.Equal(t, 500, m.perItem)
}
