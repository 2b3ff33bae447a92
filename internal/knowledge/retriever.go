// Package knowledge retrieves indexed snippets scoped to a home/room. The
// rest of the pipeline degrades to generic behavior when the index is empty,
// so retrieval returns an empty result rather than an error whenever it can.
package knowledge

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/renohq/reno/internal/storage"
)

// candidatePool bounds how many stored snippets are scored per query.
const candidatePool = 200

// Snippet is a retrieved knowledge fragment with its relevance score.
type Snippet struct {
	ID      string
	Title   string
	Content string
	Score   float64
}

// SnippetSource abstracts the snippet table for the retriever.
type SnippetSource interface {
	SnippetsForScope(ctx context.Context, homeID, roomID string, limit int) ([]storage.Snippet, error)
}

// Retriever ranks stored snippets against the query text.
type Retriever struct {
	source SnippetSource
}

func NewRetriever(source SnippetSource) *Retriever {
	return &Retriever{source: source}
}

// Query returns up to limit snippets ranked by term overlap with the query,
// newest first on ties. An empty or missing index yields an empty slice, not
// an error; source failures are logged and likewise absorbed, since retrieval
// is never fatal to a turn.
func (r *Retriever) Query(ctx context.Context, homeID, roomID, text string, limit int) []Snippet {
	if limit <= 0 {
		limit = 5
	}

	candidates, err := r.source.SnippetsForScope(ctx, homeID, roomID, candidatePool)
	if err != nil {
		slog.Warn("knowledge retrieval failed", "error", err)
		return nil
	}
	if len(candidates) == 0 {
		return nil
	}

	queryTerms := tokenize(text)
	if len(queryTerms) == 0 {
		return nil
	}

	scored := make([]Snippet, 0, len(candidates))
	for _, c := range candidates {
		score := overlapScore(queryTerms, tokenize(c.Title+" "+c.Content))
		if score == 0 {
			continue
		}
		scored = append(scored, Snippet{ID: c.ID, Title: c.Title, Content: c.Content, Score: score})
	}

	// Candidates arrive newest first, and the sort is stable, so ties keep
	// recency order.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// tokenize lowercases and splits on non-alphanumeric runes, dropping short
// stopword-like terms.
func tokenize(s string) map[string]bool {
	terms := map[string]bool{}
	for _, field := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(field) < 3 {
			continue
		}
		terms[field] = true
	}
	return terms
}

// overlapScore is the fraction of query terms present in the document.
func overlapScore(query, doc map[string]bool) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for term := range query {
		if doc[term] {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}
