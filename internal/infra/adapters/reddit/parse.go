package reddit

import (
	"encoding/json"
	"fmt"

	"github.com/yigitkonur/research-powerpack-mcp/internal/domain"
)

// Reddit's comments endpoint returns a two-element JSON array: the
// post listing and the comment listing. Each "thing" is tagged with a
// "kind" (t3 = link/post, t1 = comment, more = "load more" stub we
// ignore) and its payload lives under "data". Comment replies are
// either another Listing object or the empty string "" when there are
// none — both are handled below.

type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type listingData struct {
	Children []thing `json:"children"`
}

type postData struct {
	ID          string  `json:"id"`
	Subreddit   string  `json:"subreddit"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	URL         string  `json:"url"`
	SelfText    string  `json:"selftext"`
}

type commentData struct {
	ID      string          `json:"id"`
	Author  string          `json:"author"`
	Body    string          `json:"body"`
	Score   int             `json:"score"`
	Replies json.RawMessage `json:"replies"`
}

func parseListingJSON(raw []byte) (rawListing, error) {
	var pair []thing
	if err := json.Unmarshal(raw, &pair); err != nil {
		return rawListing{}, domain.NewClassifiedError(domain.KindParse, "decode reddit listing: "+err.Error(), 0, err)
	}
	if len(pair) != 2 {
		return rawListing{}, domain.NewClassifiedError(domain.KindParse, fmt.Sprintf("expected 2-element reddit listing, got %d", len(pair)), 0, nil)
	}

	post, err := parsePostThing(pair[0])
	if err != nil {
		return rawListing{}, err
	}
	comments, err := parseCommentListing(pair[1].Data)
	if err != nil {
		return rawListing{}, err
	}
	return rawListing{post: post, comments: comments}, nil
}

func parsePostThing(t thing) (domain.RedditPostMetadata, error) {
	var listing listingData
	if err := json.Unmarshal(t.Data, &listing); err != nil {
		return domain.RedditPostMetadata{}, domain.NewClassifiedError(domain.KindParse, "decode reddit post listing: "+err.Error(), 0, err)
	}
	if len(listing.Children) == 0 {
		return domain.RedditPostMetadata{}, domain.NewClassifiedError(domain.KindNotFound, "reddit post not found", 0, nil)
	}
	var p postData
	if err := json.Unmarshal(listing.Children[0].Data, &p); err != nil {
		return domain.RedditPostMetadata{}, domain.NewClassifiedError(domain.KindParse, "decode reddit post: "+err.Error(), 0, err)
	}
	return domain.RedditPostMetadata{
		ID:          p.ID,
		Subreddit:   p.Subreddit,
		Title:       p.Title,
		Author:      p.Author,
		Score:       p.Score,
		NumComments: p.NumComments,
		CreatedUTC:  p.CreatedUTC,
		URL:         p.URL,
		SelfText:    p.SelfText,
	}, nil
}

func parseCommentListing(raw json.RawMessage) ([]rawCommentNode, error) {
	var listing listingData
	if err := json.Unmarshal(raw, &listing); err != nil {
		return nil, domain.NewClassifiedError(domain.KindParse, "decode reddit comment listing: "+err.Error(), 0, err)
	}
	nodes := make([]rawCommentNode, 0, len(listing.Children))
	for _, child := range listing.Children {
		if child.Kind != "t1" {
			continue // skip "more" stubs; we do not paginate deeper replies
		}
		node, err := parseCommentThing(child.Data)
		if err != nil {
			continue // a single malformed comment must not fail the whole thread
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func parseCommentThing(raw json.RawMessage) (rawCommentNode, error) {
	var c commentData
	if err := json.Unmarshal(raw, &c); err != nil {
		return rawCommentNode{}, err
	}
	node := rawCommentNode{
		ID:      c.ID,
		Author:  c.Author,
		Body:    c.Body,
		Score:   c.Score,
		Deleted: c.Author == "" || c.Author == "[deleted]",
	}
	if len(c.Replies) > 0 {
		var repliesStr string
		if err := json.Unmarshal(c.Replies, &repliesStr); err == nil {
			// "replies": "" means no replies; nothing further to parse.
			return node, nil
		}
		var replies thing
		if err := json.Unmarshal(c.Replies, &replies); err == nil {
			children, err := parseCommentListing(replies.Data)
			if err == nil {
				node.Children = children
			}
		}
	}
	return node, nil
}
