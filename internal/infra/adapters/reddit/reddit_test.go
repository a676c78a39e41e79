package reddit_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yigitkonur/research-powerpack-mcp/internal/infra/adapters/reddit"
)

func TestFetchThread_RejectsNonPostURL(t *testing.T) {
	a := reddit.New("id", "secret", "", nil)
	resp := a.FetchThread(context.Background(), "https://reddit.com/r/golang", 50)
	require.NotNil(t, resp.Err)
	assert.Equal(t, "INVALID_INPUT", string(resp.Err.Kind))
	assert.False(t, resp.Err.Retryable)
}

func TestFetchBatch_EmptyInput(t *testing.T) {
	a := reddit.New("id", "secret", "", nil)
	assert.Empty(t, a.FetchBatch(context.Background(), nil, 50))
}

// commentsListingFixture builds a minimal two-element Reddit listing
// payload: one post plus a comment tree with a deleted author, a
// nested reply, and an out-of-score-order sibling, used to validate
// position/ordering/filtering in flattenComments end to end.
func commentsListingFixture() []byte {
	payload := []any{
		map[string]any{
			"kind": "Listing",
			"data": map[string]any{
				"children": []any{
					map[string]any{
						"kind": "t3",
						"data": map[string]any{
							"id": "abc123", "subreddit": "golang", "title": "Best Go book?",
							"author": "poster", "score": 100, "num_comments": 3,
							"created_utc": 1700000000.0, "url": "https://reddit.com/r/golang/comments/abc123", "selftext": "",
						},
					},
				},
			},
		},
		map[string]any{
			"kind": "Listing",
			"data": map[string]any{
				"children": []any{
					map[string]any{
						"kind": "t1",
						"data": map[string]any{
							"id": "c1", "author": "alice", "body": "top reply", "score": 10,
							"replies": map[string]any{
								"kind": "Listing",
								"data": map[string]any{
									"children": []any{
										map[string]any{
											"kind": "t1",
											"data": map[string]any{"id": "c1a", "author": "bob", "body": "nested reply", "score": 3, "replies": ""},
										},
									},
								},
							},
						},
					},
					map[string]any{
						"kind": "t1",
						"data": map[string]any{"id": "c2", "author": "[deleted]", "body": "[removed]", "score": 999, "replies": ""},
					},
					map[string]any{
						"kind": "t1",
						"data": map[string]any{"id": "c3", "author": "carol", "body": "higher score reply", "score": 50, "replies": ""},
					},
				},
			},
		},
	}
	b, _ := json.Marshal(payload)
	return b
}

func newFakeRedditServer(t *testing.T, tokenCalls, apiCalls *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(tokenCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 3600})
	})
	mux.HandleFunc("/comments/abc123", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(apiCalls, 1)
		auth := r.Header.Get("Authorization")
		require.Equal(t, "Bearer tok-1", auth)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(commentsListingFixture())
	})
	srv := httptest.NewServer(mux)
	return srv
}

func TestFetchThread_FlattensOrdersAndFiltersDeleted(t *testing.T) {
	var tokenCalls, apiCalls int32
	srv := newFakeRedditServer(t, &tokenCalls, &apiCalls)
	defer srv.Close()

	a := reddit.NewWithEndpoints("id", "secret", "", srv.URL+"/token", srv.URL, nil)
	resp := a.FetchThread(context.Background(), "https://www.reddit.com/r/golang/comments/abc123/best_go_book/", 50)
	require.Nil(t, resp.Err)
	require.Equal(t, "Best Go book?", resp.PostMetadata.Title)

	require.Len(t, resp.Comments, 3, "deleted author c2 must be filtered out")
	// Top-level siblings ordered by descending score: c3 (50) before c1 (10).
	assert.Equal(t, "c3", resp.Comments[0].ID)
	assert.Equal(t, 0, resp.Comments[0].Depth)
	assert.Equal(t, "c1", resp.Comments[1].ID)
	assert.Equal(t, 0, resp.Comments[1].Depth)
	// Nested reply appears directly after its parent, depth 1.
	assert.Equal(t, "c1a", resp.Comments[2].ID)
	assert.Equal(t, 1, resp.Comments[2].Depth)
	assert.Equal(t, "c1", resp.Comments[2].ParentID)

	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&apiCalls))
}

func TestFetchThread_CapsAtAllocatedComments(t *testing.T) {
	var tokenCalls, apiCalls int32
	srv := newFakeRedditServer(t, &tokenCalls, &apiCalls)
	defer srv.Close()

	a := reddit.NewWithEndpoints("id", "secret", "", srv.URL+"/token", srv.URL, nil)
	resp := a.FetchThread(context.Background(), "https://reddit.com/comments/abc123", 2)
	require.Nil(t, resp.Err)
	assert.Len(t, resp.Comments, 2)
	assert.Equal(t, 2, resp.AllocatedComments)
}

func TestFetchThread_TokenReusedAcrossCalls(t *testing.T) {
	var tokenCalls, apiCalls int32
	srv := newFakeRedditServer(t, &tokenCalls, &apiCalls)
	defer srv.Close()

	a := reddit.NewWithEndpoints("id", "secret", "", srv.URL+"/token", srv.URL, nil)
	for i := 0; i < 3; i++ {
		resp := a.FetchThread(context.Background(), "https://reddit.com/comments/abc123", 50)
		require.Nil(t, resp.Err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls), "token must be cached across calls, not refetched")
	assert.Equal(t, int32(3), atomic.LoadInt32(&apiCalls))
}

func TestFetchBatch_ConcurrentFetchesShareOneTokenRefresh(t *testing.T) {
	var tokenCalls, apiCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 3600})
	})
	mux.HandleFunc("/comments/abc123", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&apiCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(commentsListingFixture())
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := reddit.NewWithEndpoints("id", "secret", "", srv.URL+"/token", srv.URL, nil)
	urls := []string{
		"https://reddit.com/comments/abc123",
		"https://reddit.com/comments/abc123",
		"https://reddit.com/comments/abc123",
		"https://reddit.com/comments/abc123",
	}
	results := a.FetchBatch(context.Background(), urls, 50)
	require.Len(t, results, 4)
	for _, r := range results {
		assert.Nil(t, r.Err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls), "single-flight refresh must serve all concurrent fetchers")
}

func TestPostURLParsing_VariousShapes(t *testing.T) {
	var tokenCalls, apiCalls int32
	srv := newFakeRedditServer(t, &tokenCalls, &apiCalls)
	defer srv.Close()

	a := reddit.NewWithEndpoints("id", "secret", "", srv.URL+"/token", srv.URL, nil)
	for _, u := range []string{
		"https://www.reddit.com/r/golang/comments/abc123/best_go_book/",
		"https://old.reddit.com/r/golang/comments/abc123",
		"https://reddit.com/comments/abc123",
	} {
		resp := a.FetchThread(context.Background(), u, 50)
		assert.Nil(t, resp.Err, "url %q should parse and fetch successfully", u)
	}
}
