// Package retriever implements the interchangeable retrieval strategies over the vector store.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mentis/internal/embedding"
	"github.com/hyperjump/mentis/internal/encoder"
	"github.com/hyperjump/mentis/internal/models"
	"github.com/hyperjump/mentis/internal/retry"
	"github.com/hyperjump/mentis/internal/vector"
)

// Retriever names accepted in configuration and on the command line.
const (
	KindSimple  = "simple"
	KindSummary = "summary"
	KindHybrid  = "hybrid"
)

// Retriever encodes a diary into its own collection and answers queries from it.
type Retriever interface {
	Name() string
	// Collection is the collection queries are answered from.
	Collection() string
	// Encode replaces the retriever's stored state with the encoding of diary.
	Encode(ctx context.Context, diary string) (*encoder.Report, error)
	// Query returns at most topK passages, best first. topK <= 0 uses the retriever default.
	Query(ctx context.Context, text string, topK int) (*models.RetrievalResult, error)
}

// Appender is implemented by retrievers that can add a new diary entry to their stored state
// without re-encoding the whole diary.
type Appender interface {
	Append(ctx context.Context, entry string) (*encoder.Report, error)
}

// Deps are the collaborators shared by every retriever.
type Deps struct {
	Embedder embedding.Embedder
	Store    vector.Store
	Retry    retry.Policy
	// ProviderName labels embedding ProviderErrors, e.g. "openai".
	ProviderName string
	Logger       *zap.Logger
}

// Options configure the encoding side of a retriever.
type Options struct {
	Name        string
	Collection  string
	Chunking    encoder.ChunkingOptions
	TopK        int
	BatchSize   int
	Parallelism int
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d Deps) provider() string {
	if d.ProviderName == "" {
		return "embedding"
	}
	return d.ProviderName
}

func (d Deps) encoder(collection string, opts Options) (*encoder.Encoder, error) {
	chunker, err := encoder.NewChunker(opts.Chunking)
	if err != nil {
		return nil, err
	}
	return encoder.New(collection, chunker, d.Embedder, d.Store,
		encoder.WithLogger(d.logger()),
		encoder.WithRetry(d.Retry),
		encoder.WithBatchSize(opts.BatchSize),
		encoder.WithParallelism(opts.Parallelism),
		encoder.WithProviderName(d.provider()),
	), nil
}

// embedQuery embeds a query under the retry policy.
func (d Deps) embedQuery(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	policy := d.Retry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		d.logger().Warn("retrying query embedding", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
	}
	err := policy.Do(ctx, func(ctx context.Context) error {
		v, err := d.Embedder.Embed(ctx, text)
		if err != nil {
			return err
		}
		if len(v) == 0 || (d.Embedder.Dimensions() > 0 && len(v) != d.Embedder.Dimensions()) {
			return retry.Permanent(fmt.Errorf("query vector has dimension %d, expected %d", len(v), d.Embedder.Dimensions()))
		}
		vec = v
		return nil
	})
	if err != nil {
		var pe *models.ProviderError
		if errors.As(err, &pe) {
			return nil, &models.ProviderError{Provider: pe.Provider, Op: "embed query", Err: pe.Err}
		}
		return nil, &models.ProviderError{Provider: d.provider(), Op: "embed query", Err: err}
	}
	return vec, nil
}

// search embeds text and runs a similarity query against collection.
func (d Deps) search(ctx context.Context, collection, text string, k int) ([]vector.Hit, error) {
	vec, err := d.embedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	hits, err := d.Store.Query(ctx, collection, vec, k)
	if err != nil {
		var se *models.StorageError
		if !errors.As(err, &se) {
			err = &models.StorageError{Op: "query", Collection: collection, Err: err}
		}
		return nil, err
	}
	return hits, nil
}

func normalizeQuery(text string, topK, def int) (string, int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", 0, fmt.Errorf("query cannot be empty")
	}
	if topK <= 0 {
		topK = def
	}
	if topK <= 0 {
		topK = models.DefaultTopK
	}
	if topK > models.MaxTopK {
		topK = models.MaxTopK
	}
	return text, topK, nil
}

func passageFromHit(h vector.Hit) *models.Passage {
	return &models.Passage{
		ID:             h.ID,
		Text:           h.Text,
		Score:          h.Score,
		SourceChunkIDs: SplitSourceIDs(h.Metadata[models.MetaSourceChunkIDs]),
		Metadata:       h.Metadata,
	}
}

// JoinSourceIDs encodes source chunk ids for record metadata.
func JoinSourceIDs(ids []string) string {
	return strings.Join(ids, ",")
}

// SplitSourceIDs decodes JoinSourceIDs output. An empty value gives nil.
func SplitSourceIDs(v string) []string {
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

func newResult(name, query string, started time.Time, passages []*models.Passage) *models.RetrievalResult {
	if passages == nil {
		passages = []*models.Passage{}
	}
	return &models.RetrievalResult{
		Retriever: name,
		Query:     query,
		Passages:  passages,
		QueryTime: time.Since(started).Milliseconds(),
	}
}
