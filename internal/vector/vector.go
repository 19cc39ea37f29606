package vector

import (
	"fmt"
	"sort"
)

// Item is one chunk to upsert: vector plus the payload the query path needs
// for citation without a storage round trip.
type Item struct {
	ID      string
	Vector  []float32
	Payload Payload
}

type Payload struct {
	DocumentID     string
	Title          string
	Ordinal        int
	Content        string
	Metadata       string
	EmbeddingModel string
}

// SearchResult carries a payload with its certainty, the [0,1] normalization
// of the index's native metric.
type SearchResult struct {
	Payload   Payload
	Certainty float64
}

type SearchRequest struct {
	Vector []float32
	Limit  int
	// Threshold is the minimum certainty on the normalized scale.
	Threshold float64
	Filters   map[string]string
}

// RetrievalError reports an unreachable index or a malformed query. It is
// propagated, never silently swallowed: callers decide whether to degrade.
type RetrievalError struct {
	Op  string
	Err error
}

func (e *RetrievalError) Error() string { return fmt.Sprintf("retrieval %s: %v", e.Op, e.Err) }
func (e *RetrievalError) Unwrap() error { return e.Err }

// Filter is one equality predicate pushed down to the index.
type Filter struct {
	Field string
	Value string
}

// selectivityRank orders predicate fields from most to least selective; the
// index evaluates filters in the order given, so the cheapest-to-prune field
// goes first. Unknown fields sort last, alphabetically for determinism.
var selectivityRank = map[string]int{
	"chunk_id":        0,
	"document_id":     1,
	"embedding_model": 2,
	"ordinal":         3,
	"title":           4,
}

// OrderFilters converts a filter map into a slice ordered by estimated
// selectivity, most selective first.
func OrderFilters(filters map[string]string) []Filter {
	ordered := make([]Filter, 0, len(filters))
	for field, value := range filters {
		if value == "" {
			continue
		}
		ordered = append(ordered, Filter{Field: field, Value: value})
	}

	sort.Slice(ordered, func(i, j int) bool {
		ri, iKnown := selectivityRank[ordered[i].Field]
		rj, jKnown := selectivityRank[ordered[j].Field]
		switch {
		case iKnown && jKnown:
			return ri < rj
		case iKnown:
			return true
		case jKnown:
			return false
		default:
			return ordered[i].Field < ordered[j].Field
		}
	})

	return ordered
}
