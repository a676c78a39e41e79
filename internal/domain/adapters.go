package domain

// This file holds the per-provider value objects (§3 AdapterRequest /
// AdapterResponse). None of them ever encode failure by absence:
// every response carries an explicit optional Err field so a caller
// can distinguish "empty successful result" from "failed".

// SearchResult is one ranked hit inside a SearchQueryResult.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// SearchQueryResult is the per-query slice of a batched search
// response, mapped position-wise back onto the input queries (§4.5).
type SearchQueryResult struct {
	Query          string
	Results        []SearchResult
	TotalResults   int
	RelatedQueries []string
	Err            *ClassifiedError
}

// RedditComment is one flattened node of a depth-capped comment tree
// (§4.5): parent-before-child, siblings ordered by descending score.
type RedditComment struct {
	ID       string
	Author   string
	Body     string
	Score    int
	Depth    int
	ParentID string
}

// RedditPostMetadata is the post-listing half of a Reddit fetch.
type RedditPostMetadata struct {
	ID          string
	Subreddit   string
	Title       string
	Author      string
	Score       int
	NumComments int
	CreatedUTC  float64
	URL         string
	SelfText    string
}

// RedditThreadResponse is the Reddit adapter's per-URL result.
type RedditThreadResponse struct {
	PostMetadata      RedditPostMetadata
	Comments          []RedditComment
	AllocatedComments int
	Err               *ClassifiedError
}

// ScrapeMode is one rung of the scraper's fallback ladder (§4.5).
type ScrapeMode string

const (
	ScrapeModeBasic         ScrapeMode = "basic"
	ScrapeModeJavaScript    ScrapeMode = "javascript"
	ScrapeModeJavaScriptGeo ScrapeMode = "javascript+geo"
)

// ScrapeResponse is the scraper adapter's per-URL result. No adapter
// response type ever encodes failure by absence (§3) — Err is
// explicit and separate from an empty/short Content.
type ScrapeResponse struct {
	URL             string
	Content         string
	StatusCode      int
	CreditsConsumed int
	ModeUsed        ScrapeMode
	Err             *ClassifiedError
}

// LLMExtractionResponse is the LLM adapter's result for one question.
// On final failure the adapter returns Processed=false with Content
// set to the *original input*, so the caller can gracefully degrade
// (§4.5).
type LLMExtractionResponse struct {
	Question   string
	Content    string
	Processed  bool
	TokensUsed int
	Err        *ClassifiedError
}
