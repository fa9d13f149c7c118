// Package keyword provides BM25 keyword search over diary passages.
package keyword

import "context"

// Doc is one indexed passage. Date holds the diary entry date line, if any.
type Doc struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Date string `json:"date"`
}

// SearchOptions tunes a search. Nil means plain match semantics.
type SearchOptions struct {
	// DateBoost multiplies matches in the date field, so "monday" prefers Monday entries.
	DateBoost float64
	// PhraseBoost multiplies the score of passages containing the query as a phrase.
	PhraseBoost float64
	// Fuzziness > 0 enables typo tolerance with the given edit distance (1 or 2).
	Fuzziness int
}

// Result is a single keyword hit.
type Result struct {
	ID    string
	Score float64
}

// Index is a replaceable keyword index over one collection.
type Index interface {
	// Replace drops all indexed passages and indexes docs.
	Replace(ctx context.Context, docs []Doc) error
	// Add indexes docs next to the passages already indexed, overwriting equal ids.
	Add(ctx context.Context, docs []Doc) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]Result, error)
	DocCount() (uint64, error)
	Close() error
}
