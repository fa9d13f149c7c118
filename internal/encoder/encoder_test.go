package encoder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mentis/internal/embedding"
	"github.com/hyperjump/mentis/internal/models"
	"github.com/hyperjump/mentis/internal/retry"
	"github.com/hyperjump/mentis/internal/vector"
)

// flakyEmbedder fails every batch containing a text with failOn, and the first failFirst calls.
type flakyEmbedder struct {
	*embedding.MockEmbedder
	mu        sync.Mutex
	calls     int
	failFirst int
	failOn    string
	wrongDim  bool
}

func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if call <= f.failFirst {
		return nil, errors.New("503 service unavailable")
	}
	for _, t := range texts {
		if f.failOn != "" && strings.Contains(t, f.failOn) {
			return nil, errors.New("400 bad input")
		}
	}
	out, err := f.MockEmbedder.EmbedBatch(ctx, texts)
	if f.wrongDim && err == nil {
		out[0] = out[0][:2]
	}
	return out, err
}

// failingStore rejects every replace.
type failingStore struct{ vector.Store }

func (failingStore) Replace(context.Context, string, []vector.Record) error {
	return errors.New("disk full")
}

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
}

func newWordEncoder(t *testing.T, emb embedding.Embedder, store vector.Store, opts ...Option) *Encoder {
	t.Helper()
	c, err := NewChunker(ChunkingOptions{Policy: PolicyWords, Size: 2, Overlap: 0})
	if err != nil {
		t.Fatal(err)
	}
	opts = append([]Option{WithRetry(fastRetry()), WithLogger(zap.NewNop())}, opts...)
	return New("simple_rag", c, emb, store, opts...)
}

func TestEncoder_EncodeStores(t *testing.T) {
	ctx := context.Background()
	store, _ := vector.NewMemoryStore("")
	enc := newWordEncoder(t, embedding.NewMockEmbedder(16), store, WithBatchSize(2))

	report, err := enc.Encode(ctx, true, "one two three four five six seven")
	if err != nil {
		t.Fatal(err)
	}
	if report.NumChunks != 4 || report.Embedded != 4 || !report.Stored {
		t.Errorf("unexpected report: %+v", report)
	}
	if n, _ := store.Count(ctx, "simple_rag"); n != 4 {
		t.Errorf("expected 4 stored records, got %d", n)
	}
	got, _ := store.Get(ctx, "simple_rag", []string{report.Chunks[3].ID})
	if len(got) != 1 || got[0].Text != "seven" || got[0].Metadata[models.MetaIndex] != "3" {
		t.Errorf("stored record = %+v", got)
	}
}

func TestEncoder_DryRunDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	store, _ := vector.NewMemoryStore("")
	enc := newWordEncoder(t, embedding.NewMockEmbedder(16), store)

	report, err := enc.Encode(ctx, false, "one two three")
	if err != nil {
		t.Fatal(err)
	}
	if report.Stored || report.NumChunks != 2 || report.Embedded != 2 {
		t.Errorf("unexpected report: %+v", report)
	}
	if n, _ := store.Count(ctx, "simple_rag"); n != 0 {
		t.Errorf("dry run wrote %d records", n)
	}
}

func TestEncoder_ReencodeReplaces(t *testing.T) {
	ctx := context.Background()
	store, _ := vector.NewMemoryStore("")
	enc := newWordEncoder(t, embedding.NewMockEmbedder(16), store)
	text := "Monday ran 5k Tuesday met Alice"

	first, err := enc.Encode(ctx, true, text)
	if err != nil {
		t.Fatal(err)
	}
	second, err := enc.Encode(ctx, true, text)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := store.Count(ctx, "simple_rag"); n != first.NumChunks {
		t.Errorf("re-encoding duplicated content: %d records for %d chunks", n, first.NumChunks)
	}
	for i := range first.Chunks {
		if first.Chunks[i].ID != second.Chunks[i].ID {
			t.Errorf("chunk %d id changed between runs", i)
		}
	}

	if _, err := enc.Encode(ctx, true, "short"); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.Count(ctx, "simple_rag"); n != 1 {
		t.Errorf("stale chunks survived re-encode: %d records", n)
	}
}

func TestEncoder_RetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	store, _ := vector.NewMemoryStore("")
	emb := &flakyEmbedder{MockEmbedder: embedding.NewMockEmbedder(8), failFirst: 2}
	enc := newWordEncoder(t, emb, store, WithParallelism(1))

	if _, err := enc.Encode(ctx, true, "one two"); err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if emb.calls != 3 {
		t.Errorf("expected 3 calls, got %d", emb.calls)
	}
}

func TestEncoder_ProviderFailureReportsChunksAndKeepsStore(t *testing.T) {
	ctx := context.Background()
	store, _ := vector.NewMemoryStore("")
	good := newWordEncoder(t, embedding.NewMockEmbedder(8), store)
	if _, err := good.Encode(ctx, true, "old content here"); err != nil {
		t.Fatal(err)
	}

	emb := &flakyEmbedder{MockEmbedder: embedding.NewMockEmbedder(8), failOn: "three"}
	enc := newWordEncoder(t, emb, store, WithBatchSize(1), WithProviderName("openai"))
	report, err := enc.Encode(ctx, true, "one two three four five six")

	var pe *models.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.Provider != "openai" {
		t.Errorf("provider = %q", pe.Provider)
	}
	if len(report.Failed) != 1 || report.Failed[0] != report.Chunks[1].ID {
		t.Errorf("expected the chunk containing 'three' to be reported, got %v", report.Failed)
	}
	if report.Embedded != 2 || report.Stored {
		t.Errorf("unexpected report: %+v", report)
	}
	if n, _ := store.Count(ctx, "simple_rag"); n != 2 {
		t.Errorf("previous contents should be untouched, got %d records", n)
	}
}

func TestEncoder_DimensionMismatchIsProviderError(t *testing.T) {
	store, _ := vector.NewMemoryStore("")
	emb := &flakyEmbedder{MockEmbedder: embedding.NewMockEmbedder(8), wrongDim: true}
	enc := newWordEncoder(t, emb, store)

	_, err := enc.Encode(context.Background(), true, "one two")
	var pe *models.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if emb.calls != 1 {
		t.Errorf("malformed output should not be retried, got %d calls", emb.calls)
	}
}

func TestEncoder_StorageFailure(t *testing.T) {
	mem, _ := vector.NewMemoryStore("")
	enc := newWordEncoder(t, embedding.NewMockEmbedder(8), failingStore{mem})

	_, err := enc.Encode(context.Background(), true, "one two")
	var se *models.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if se.Collection != "simple_rag" {
		t.Errorf("collection = %q", se.Collection)
	}
}

func TestEncoder_EncodeChunksKeepsIDs(t *testing.T) {
	ctx := context.Background()
	store, _ := vector.NewMemoryStore("")
	enc := newWordEncoder(t, embedding.NewMockEmbedder(8), store)

	chunks := []models.Chunk{
		{ID: "s1", Text: "- ran 5k", Metadata: map[string]string{models.MetaSourceChunkIDs: "c0"}},
		{Text: "- met Alice"},
	}
	report, err := enc.EncodeChunks(ctx, true, chunks)
	if err != nil {
		t.Fatal(err)
	}
	if report.Chunks[0].ID != "s1" || report.Chunks[1].ID == "" {
		t.Errorf("unexpected ids: %+v", report.Chunks)
	}
	got, _ := store.Get(ctx, "simple_rag", []string{"s1"})
	if len(got) != 1 || got[0].Metadata[models.MetaSourceChunkIDs] != "c0" || got[0].Metadata[models.MetaIndex] != "0" {
		t.Errorf("stored record = %+v", got)
	}
}

func TestEncoder_AppendContinuesPositions(t *testing.T) {
	ctx := context.Background()
	store, _ := vector.NewMemoryStore("")
	enc := newWordEncoder(t, embedding.NewMockEmbedder(16), store)

	first, err := enc.Encode(ctx, true, "one two three four")
	if err != nil {
		t.Fatal(err)
	}
	appended, err := enc.Append(ctx, "one two")
	if err != nil {
		t.Fatal(err)
	}
	if !appended.Stored || appended.NumChunks != 1 {
		t.Fatalf("unexpected report: %+v", appended)
	}
	if appended.Chunks[0].Index != 2 {
		t.Errorf("appended index = %d, want 2", appended.Chunks[0].Index)
	}
	if appended.Chunks[0].ID == first.Chunks[0].ID {
		t.Error("appended chunk reused the id of a stored chunk with the same text")
	}
	if n, _ := store.Count(ctx, "simple_rag"); n != 3 {
		t.Errorf("expected 3 records after append, got %d", n)
	}
	recs, _ := store.List(ctx, "simple_rag")
	if recs[2].Metadata[models.MetaIndex] != "2" {
		t.Errorf("appended record metadata = %v", recs[2].Metadata)
	}
}

func TestEncoder_AppendAfterEmptyEncode(t *testing.T) {
	ctx := context.Background()
	store, _ := vector.NewMemoryStore("")
	enc := newWordEncoder(t, embedding.NewMockEmbedder(16), store)

	if _, err := enc.Encode(ctx, true, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := enc.Append(ctx, "met Alice"); err != nil {
		t.Fatalf("append to empty collection: %v", err)
	}
	if n, _ := store.Count(ctx, "simple_rag"); n != 1 {
		t.Errorf("expected 1 record, got %d", n)
	}
}

func TestEncoder_AppendFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	store, _ := vector.NewMemoryStore("")
	emb := &flakyEmbedder{MockEmbedder: embedding.NewMockEmbedder(16), failOn: "bad"}
	enc := newWordEncoder(t, emb, store)

	if _, err := enc.Encode(ctx, true, "one two"); err != nil {
		t.Fatal(err)
	}
	report, err := enc.Append(ctx, "bad input")
	var pe *models.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if report.Stored || len(report.Failed) != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
	if n, _ := store.Count(ctx, "simple_rag"); n != 1 {
		t.Errorf("failed append changed the store: %d records", n)
	}
}
