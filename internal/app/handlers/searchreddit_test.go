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

func TestSearchReddit_ConsensusRankingSurfacesInBody(t *testing.T) {
	adapter := &stubSearchAdapter{
		redditBatch: func(ctx context.Context, queries []string, dateFilter string) []domain.SearchQueryResult {
			return []domain.SearchQueryResult{
				{Query: queries[0], Results: []domain.SearchResult{
					{Title: "Reddit A", URL: "https://reddit.com/a"},
					{Title: "Reddit B", URL: "https://reddit.com/b"},
				}},
				{Query: queries[1], Results: []domain.SearchResult{
					{Title: "Reddit A", URL: "https://reddit.com/a"},
				}},
			}
		},
	}
	h := handlers.NewSearchRedditHandler(adapter, zap.NewNop())
	res, err := h(context.Background(), map[string]any{"queries": []any{"q1", "q2"}})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, res.Text, "Consensus")
	assert.Contains(t, res.Text, "reddit.com/a")
}

func TestSearchReddit_PassesDateFilterThrough(t *testing.T) {
	var gotFilter string
	adapter := &stubSearchAdapter{
		redditBatch: func(ctx context.Context, queries []string, dateFilter string) []domain.SearchQueryResult {
			gotFilter = dateFilter
			return []domain.SearchQueryResult{{Query: queries[0], Results: []domain.SearchResult{{URL: "https://reddit.com/a"}}}}
		},
	}
	h := handlers.NewSearchRedditHandler(adapter, zap.NewNop())
	_, err := h(context.Background(), map[string]any{"queries": []any{"q1"}, "date_filter": "week"})
	require.NoError(t, err)
	assert.Equal(t, "week", gotFilter)
}

func TestSearchReddit_AllFailedIsError(t *testing.T) {
	adapter := &stubSearchAdapter{
		redditBatch: func(ctx context.Context, queries []string, dateFilter string) []domain.SearchQueryResult {
			return []domain.SearchQueryResult{
				{Query: queries[0], Err: domain.NewClassifiedError(domain.KindServiceUnavailable, "down", 503, nil)},
			}
		},
	}
	h := handlers.NewSearchRedditHandler(adapter, zap.NewNop())
	res, err := h(context.Background(), map[string]any{"queries": []any{"q1"}})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestSearchReddit_TooManyQueriesIsInvalidInput(t *testing.T) {
	queries := make([]any, 11)
	for i := range queries {
		queries[i] = "q"
	}
	h := handlers.NewSearchRedditHandler(&stubSearchAdapter{}, zap.NewNop())
	_, err := h(context.Background(), map[string]any{"queries": queries})
	require.Error(t, err)
}
