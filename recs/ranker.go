package recs

import (
	"context"

	"vidvault/catalog"
)

// CandidateStore queries and scores the recommendation candidate pool.
type CandidateStore interface {
	QueryCandidates(ctx context.Context, q catalog.CandidateQuery) ([]catalog.Summary, int, error)
}

// Ranker orders the candidate catalog against an affinity profile.
type Ranker struct {
	Store CandidateStore
}

// Rank returns one page of candidates plus the pre-pagination total.
// Candidates score 2 per shared profile category and 1 per shared profile
// tag; ordering is score, then recency, then a per-request random
// tie-break. An empty profile degrades to a purely recency-ordered pool.
// Excluded IDs never appear in the result.
func (r *Ranker) Rank(ctx context.Context, profile Profile, excludeIDs []int64, page, limit int) ([]catalog.Summary, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	return r.Store.QueryCandidates(ctx, catalog.CandidateQuery{
		Categories: profile.Categories,
		Tags:       profile.Tags,
		ExcludeIDs: excludeIDs,
		Page:       page,
		Limit:      limit,
	})
}
