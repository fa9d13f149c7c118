// Package vector defines the collection-oriented vector store used by every retriever,
// plus an in-memory implementation.
package vector

import (
	"context"
	"sort"
)

// Record is one stored vector with its passage text and metadata.
type Record struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]string
}

// Hit is a single similarity search result.
type Hit struct {
	ID       string
	Score    float64 // cosine similarity
	Text     string
	Metadata map[string]string
}

// CollectionInfo describes a stored collection.
type CollectionInfo struct {
	Name       string `json:"name"`
	Dimensions int    `json:"dimensions"`
	Count      int    `json:"count"`
}

// Store holds named collections of vectors. A collection's dimension is fixed by its first write.
// Querying a collection that does not exist or is empty returns no hits and no error.
type Store interface {
	// Write upserts records by id.
	Write(ctx context.Context, collection string, records []Record) error
	// Replace atomically swaps the whole collection for records.
	Replace(ctx context.Context, collection string, records []Record) error
	// Query returns at most k hits ordered by descending score, ties by ascending id.
	Query(ctx context.Context, collection string, query []float32, k int) ([]Hit, error)
	// Get returns the records with the given ids that exist, in the order requested.
	Get(ctx context.Context, collection string, ids []string) ([]Record, error)
	// List returns every record of the collection in write order.
	List(ctx context.Context, collection string) ([]Record, error)
	Count(ctx context.Context, collection string) (int, error)
	Collections(ctx context.Context) ([]CollectionInfo, error)
	Drop(ctx context.Context, collection string) error
	Close() error
}

// SortHits orders hits by descending score, breaking ties by ascending id.
func SortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}
