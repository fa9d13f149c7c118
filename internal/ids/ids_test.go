package ids

import (
	"testing"

	"github.com/google/uuid"
)

func TestChunkID(t *testing.T) {
	id1 := ChunkID("simple_rag", 0, "Monday: ran 5k.")
	id2 := ChunkID("simple_rag", 0, "Monday: ran 5k.")
	if id1 != id2 {
		t.Errorf("same input should give same ID: %q vs %q", id1, id2)
	}
	if _, err := uuid.Parse(id1); err != nil {
		t.Errorf("ID should be a UUID: %q (%v)", id1, err)
	}

	tests := []struct {
		name       string
		collection string
		index      int
		text       string
	}{
		{"different collection", "summary_rag_chunks", 0, "Monday: ran 5k."},
		{"different index", "simple_rag", 1, "Monday: ran 5k."},
		{"different text", "simple_rag", 0, "Tuesday: met Alice for coffee."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if ChunkID(tt.collection, tt.index, tt.text) == id1 {
				t.Errorf("expected a different ID")
			}
		})
	}
}

func TestSummaryID(t *testing.T) {
	a := SummaryID("summary_rag", []string{"x", "y"})
	if a != SummaryID("summary_rag", []string{"x", "y"}) {
		t.Error("summary id should be deterministic")
	}
	if a == SummaryID("summary_rag", []string{"y", "x"}) {
		t.Error("source order should matter")
	}
}

func TestContentHash(t *testing.T) {
	if ContentHash("a", "b") != ContentHash("a", "b") {
		t.Error("hash should be deterministic")
	}
	if ContentHash("a", "b") == ContentHash("ab") {
		t.Error("separator should be part of the hash")
	}
	if len(ContentHash("")) != 64 {
		t.Error("expected hex sha256")
	}
}
