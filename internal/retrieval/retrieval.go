// Package retrieval defines the passage model shared by the FAQ store and
// semantic search, and the rules for merging their results.
package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"
)

// Kind identifies which collaborator produced a passage.
type Kind string

const (
	KindFAQ      Kind = "faq"
	KindSemantic Kind = "semantic"
)

// Passage is one retrieved unit of profile content. Score is the FAQ
// confidence or semantic similarity, in [0,1] once normalized.
type Passage struct {
	ID       string  `json:"id"`
	Content  string  `json:"content"`
	Question string  `json:"question,omitempty"`
	Source   string  `json:"source"`
	Score    float64 `json:"score"`
	Kind     Kind    `json:"kind"`
	Category string  `json:"category,omitempty"`
}

// Searcher performs semantic search. A miss is an empty slice, not an error.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, typeFilter string) ([]Passage, error)
}

// FAQLookup searches the FAQ store. A miss is an empty slice, not an error.
type FAQLookup interface {
	Lookup(ctx context.Context, query, category string, limit int) ([]Passage, error)
}

// MergeStrategy selects how FAQ and semantic passages are combined.
type MergeStrategy string

const (
	MergeRelevance   MergeStrategy = "relevance"
	MergeTypeGrouped MergeStrategy = "type_grouped"
	MergeRoundRobin  MergeStrategy = "round_robin"
)

// DefaultMergeLimit caps the relevance strategy when no limit is given.
const DefaultMergeLimit = 3

// ParseMergeStrategy maps a configured name to a strategy, defaulting to relevance.
func ParseMergeStrategy(s string) MergeStrategy {
	switch MergeStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case MergeTypeGrouped:
		return MergeTypeGrouped
	case MergeRoundRobin:
		return MergeRoundRobin
	default:
		return MergeRelevance
	}
}

// Normalize returns a copy of passages with every score clamped into [0,1].
// NaN scores become 0.
func Normalize(passages []Passage) []Passage {
	out := make([]Passage, len(passages))
	for i, p := range passages {
		switch {
		case math.IsNaN(p.Score) || p.Score < 0:
			p.Score = 0
		case p.Score > 1:
			p.Score = 1
		}
		out[i] = p
	}
	return out
}

// SortByScore orders passages by descending score, keeping input order on ties.
func SortByScore(passages []Passage) {
	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Score > passages[j].Score
	})
}

// Merge combines normalized FAQ and semantic passages. The limit applies to
// the relevance strategy only; the other strategies keep every passage.
func Merge(strategy MergeStrategy, faq, semantic []Passage, limit int) []Passage {
	f := Normalize(faq)
	s := Normalize(semantic)
	SortByScore(f)
	SortByScore(s)

	switch strategy {
	case MergeTypeGrouped:
		return append(f, s...)
	case MergeRoundRobin:
		out := make([]Passage, 0, len(f)+len(s))
		for i := 0; i < len(f) || i < len(s); i++ {
			if i < len(f) {
				out = append(out, f[i])
			}
			if i < len(s) {
				out = append(out, s[i])
			}
		}
		return out
	default:
		if limit <= 0 {
			limit = DefaultMergeLimit
		}
		all := append(f, s...)
		SortByScore(all)
		if len(all) > limit {
			all = all[:limit]
		}
		return all
	}
}

// Above keeps passages scoring at least min.
func Above(passages []Passage, min float64) []Passage {
	out := passages[:0:0]
	for _, p := range passages {
		if p.Score >= min {
			out = append(out, p)
		}
	}
	return out
}

// Split separates passages by kind.
func Split(passages []Passage) (faq, semantic []Passage) {
	for _, p := range passages {
		if p.Kind == KindFAQ {
			faq = append(faq, p)
		} else {
			semantic = append(semantic, p)
		}
	}
	return faq, semantic
}
