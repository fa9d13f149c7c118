package models

// Passage is one ranked hit returned by a retriever.
type Passage struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
	// SourceChunkIDs is set for passages backed by a summary.
	SourceChunkIDs []string          `json:"source_chunk_ids,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// RetrievalResult is an ordered list of passages, best first.
type RetrievalResult struct {
	Retriever string     `json:"retriever"`
	Query     string     `json:"query"`
	Passages  []*Passage `json:"passages"`
	QueryTime int64      `json:"query_time_ms"`
}

// Texts returns the passage texts in rank order.
func (r *RetrievalResult) Texts() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.Passages))
	for i, p := range r.Passages {
		out[i] = p.Text
	}
	return out
}
