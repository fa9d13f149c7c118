package models

import (
	"fmt"
	"strings"
)

const (
	// DefaultTopK is the number of passages returned when a query does not set one.
	DefaultTopK = 5
	// MaxTopK caps the number of passages a single query may ask for.
	MaxTopK = 100
)

// Query is a retrieval request against a named retriever.
type Query struct {
	Retriever string `json:"retriever"`
	Text      string `json:"query"`
	TopK      int    `json:"top_k,omitempty"`
}

// Validate checks the query text and clamps TopK into [1, MaxTopK].
func (q *Query) Validate() error {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.TopK <= 0 {
		q.TopK = DefaultTopK
	}
	if q.TopK > MaxTopK {
		q.TopK = MaxTopK
	}
	return nil
}
