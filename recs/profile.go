package recs

import (
	"context"
	"fmt"
	"sort"
)

// Profile caps: only the strongest signals from the watch history feed the
// ranking query.
const (
	TopCategories = 5
	TopTags       = 10
)

// Profile is a viewer's inferred topical preferences, strongest first.
type Profile struct {
	Categories []int64
	Tags       []int64
}

// Empty reports whether the profile carries no personalization signal.
func (p Profile) Empty() bool {
	return len(p.Categories) == 0 && len(p.Tags) == 0
}

// FrequencyStore aggregates category/tag occurrence counts over a set of
// videos.
type FrequencyStore interface {
	CategoryTagFrequencies(ctx context.Context, ids []int64) (map[int64]int, map[int64]int, error)
}

// Profiler derives an affinity profile from a viewer's watch history.
type Profiler struct {
	Store FrequencyStore
}

// Profile converts watched video IDs into the viewer's dominant categories
// and tags. An empty history yields an empty profile, which callers treat as
// "no personalization available" rather than an error.
func (p *Profiler) Profile(ctx context.Context, watched []int64) (Profile, error) {
	if len(watched) == 0 {
		return Profile{}, nil
	}
	catFreq, tagFreq, err := p.Store.CategoryTagFrequencies(ctx, watched)
	if err != nil {
		return Profile{}, fmt.Errorf("aggregate watch history: %w", err)
	}
	return Profile{
		Categories: topByFrequency(catFreq, TopCategories),
		Tags:       topByFrequency(tagFreq, TopTags),
	}, nil
}

// topByFrequency ranks identifiers by occurrence count descending and keeps
// the first n. Equal counts order by identifier so the result is stable.
func topByFrequency(freq map[int64]int, n int) []int64 {
	if len(freq) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(freq))
	for id := range freq {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if freq[ids[i]] != freq[ids[j]] {
			return freq[ids[i]] > freq[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}
