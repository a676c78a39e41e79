package handlers

import (
	"sort"

	"github.com/yigitkonur/research-powerpack-mcp/internal/domain"
)

// PositionWeight is the default CTR-style position-weighting function
// (§4.6, §9 open question: "the source hints 1/(1+pos) behavior").
// It is a parameter of RankURLs rather than a constant so a caller can
// supply an alternative curve without touching the ranking algorithm.
func PositionWeight(pos int) float64 {
	return 1.0 / float64(1+pos)
}

// RankedURL is one row of the CTR-weighted ranking output.
type RankedURL struct {
	URL         string
	Title       string
	Score       float64
	Appearances int
	MinPosition int
	QueryHits   []string
}

// RankURLs implements the search-reddit ranking algorithm of §4.6:
// score(url) = Σ_q w(position_in_q) · appearances_in_q, computed by
// summing the position weight of every appearance across every query
// (a URL appearing twice in one query's result list contributes twice,
// once per occurrence). Results are grouped into "consensus" (appeared
// in at least consensusThreshold distinct queries) and "all", each
// sorted by descending score, ties broken by ascending MinPosition
// then lexicographic URL.
func RankURLs(perQuery []domain.SearchQueryResult, weight func(pos int) float64, consensusThreshold int) (consensus, all []RankedURL) {
	if weight == nil {
		weight = PositionWeight
	}
	if consensusThreshold < 1 {
		consensusThreshold = 2
	}

	type accum struct {
		title       string
		score       float64
		queries     map[string]bool
		minPosition int
	}
	byURL := make(map[string]*accum)
	order := make([]string, 0)

	for _, qr := range perQuery {
		if qr.Err != nil {
			continue
		}
		for pos, r := range qr.Results {
			a, ok := byURL[r.URL]
			if !ok {
				a = &accum{title: r.Title, queries: make(map[string]bool), minPosition: pos}
				byURL[r.URL] = a
				order = append(order, r.URL)
			}
			a.score += weight(pos)
			a.queries[qr.Query] = true
			if pos < a.minPosition {
				a.minPosition = pos
			}
			if a.title == "" {
				a.title = r.Title
			}
		}
	}

	all = make([]RankedURL, 0, len(order))
	for _, u := range order {
		a := byURL[u]
		hits := make([]string, 0, len(a.queries))
		for q := range a.queries {
			hits = append(hits, q)
		}
		sort.Strings(hits)
		all = append(all, RankedURL{
			URL:         u,
			Title:       a.title,
			Score:       a.score,
			Appearances: len(hits),
			MinPosition: a.minPosition,
			QueryHits:   hits,
		})
	}

	sortRanked(all)

	consensus = make([]RankedURL, 0)
	for _, r := range all {
		if r.Appearances >= consensusThreshold {
			consensus = append(consensus, r)
		}
	}

	return consensus, all
}

func sortRanked(rs []RankedURL) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Score != rs[j].Score {
			return rs[i].Score > rs[j].Score
		}
		if rs[i].MinPosition != rs[j].MinPosition {
			return rs[i].MinPosition < rs[j].MinPosition
		}
		return rs[i].URL < rs[j].URL
	})
}
