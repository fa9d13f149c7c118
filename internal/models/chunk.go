// Package models holds the data types shared across encoding, retrieval and evaluation.
package models

// Chunk is an atomic unit of diary text stored with its embedding.
// Start and End are byte offsets into the normalized source text.
type Chunk struct {
	ID       string            `json:"id"`
	Index    int               `json:"index"`
	Start    int               `json:"start"`
	End      int               `json:"end"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Summary is an LLM condensation of a group of chunks.
type Summary struct {
	ID             string   `json:"id"`
	SourceChunkIDs []string `json:"source_chunk_ids"`
	Text           string   `json:"text"`
}

// Metadata keys written alongside stored records.
const (
	MetaDate           = "date"
	MetaStart          = "start"
	MetaEnd            = "end"
	MetaIndex          = "index"
	MetaSourceChunkIDs = "source_chunk_ids"
)
