// Package encoder chunks diary text, embeds the chunks and writes them into a vector store collection.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/mentis/internal/embedding"
	"github.com/hyperjump/mentis/internal/ids"
	"github.com/hyperjump/mentis/internal/models"
	"github.com/hyperjump/mentis/internal/retry"
	"github.com/hyperjump/mentis/internal/vector"
)

const (
	defaultBatchSize   = 64
	defaultParallelism = 4
)

// Report describes one Encode call.
type Report struct {
	Collection string        `json:"collection"`
	NumChunks  int           `json:"chunks"`
	Embedded   int           `json:"embedded"`
	Stored     bool          `json:"stored"`
	Failed     []string      `json:"failed,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	// Chunks are the chunks produced, with their stored ids, in source order.
	Chunks []models.Chunk `json:"-"`
}

// Encoder writes the chunks of a diary into one collection. A stored encode replaces the
// collection's previous contents; chunk ids are derived from collection, position and text,
// so encoding identical text twice leaves identical contents.
type Encoder struct {
	collection  string
	chunker     Chunker
	embedder    embedding.Embedder
	store       vector.Store
	policy      retry.Policy
	batchSize   int
	parallelism int
	provider    string
	logger      *zap.Logger // optional
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithLogger sets a logger for progress and retry events.
func WithLogger(l *zap.Logger) Option {
	return func(e *Encoder) { e.logger = l }
}

// WithRetry sets the retry policy wrapped around each embedding batch.
func WithRetry(p retry.Policy) Option {
	return func(e *Encoder) { e.policy = p }
}

// WithBatchSize sets how many chunks are sent per embedding request.
func WithBatchSize(n int) Option {
	return func(e *Encoder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithParallelism bounds how many embedding batches are in flight at once.
func WithParallelism(n int) Option {
	return func(e *Encoder) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// WithProviderName sets the provider name reported in ProviderErrors.
func WithProviderName(name string) Option {
	return func(e *Encoder) { e.provider = name }
}

// New creates an encoder for collection.
func New(collection string, chunker Chunker, embedder embedding.Embedder, store vector.Store, opts ...Option) *Encoder {
	e := &Encoder{
		collection:  collection,
		chunker:     chunker,
		embedder:    embedder,
		store:       store,
		policy:      retry.DefaultPolicy(),
		batchSize:   defaultBatchSize,
		parallelism: defaultParallelism,
		provider:    "embedding",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Collection returns the collection this encoder writes.
func (e *Encoder) Collection() string {
	return e.collection
}

// Encode chunks and embeds text. When store is true the collection is replaced with the
// result; otherwise nothing is written. Any batch that still fails after retries fails the
// whole call with a ProviderError, the failed chunk ids are listed in the report, and the
// stored collection is left untouched.
func (e *Encoder) Encode(ctx context.Context, store bool, text string) (*Report, error) {
	chunks := e.chunker.Chunk(Preprocess(text))
	for i := range chunks {
		chunks[i].ID = ids.ChunkID(e.collection, i, chunks[i].Text)
	}
	if e.logger != nil {
		e.logger.Debug("encoder chunked text", zap.String("collection", e.collection), zap.Int("chunks", len(chunks)))
	}
	return e.EncodeChunks(ctx, store, chunks)
}

// EncodeChunks embeds already prepared chunks with the same failure and replace semantics as
// Encode. Chunks without an id get one derived from their position and text.
func (e *Encoder) EncodeChunks(ctx context.Context, store bool, chunks []models.Chunk) (*Report, error) {
	started := time.Now()
	for i := range chunks {
		chunks[i].Index = i
		if chunks[i].ID == "" {
			chunks[i].ID = ids.ChunkID(e.collection, i, chunks[i].Text)
		}
	}
	report := &Report{Collection: e.collection, NumChunks: len(chunks), Chunks: chunks}

	vectors, failed, err := e.embedAll(ctx, chunks)
	report.Embedded = len(chunks) - len(failed)
	report.Failed = failed
	if err != nil {
		report.Duration = time.Since(started)
		return report, err
	}

	if store {
		if err := e.store.Replace(ctx, e.collection, records(chunks, vectors)); err != nil {
			report.Duration = time.Since(started)
			return report, e.storageError("replace", err)
		}
		report.Stored = true
	}
	report.Duration = time.Since(started)
	e.logFinished("encoder finished", report)
	return report, nil
}

// Append chunks text and upserts the chunks after those already stored. Positions continue
// from the collection's current count, so appended ids never collide with stored ones. On
// failure nothing is written.
func (e *Encoder) Append(ctx context.Context, text string) (*Report, error) {
	started := time.Now()
	base, err := e.store.Count(ctx, e.collection)
	if err != nil {
		return nil, e.storageError("count", err)
	}
	chunks := e.chunker.Chunk(Preprocess(text))
	for i := range chunks {
		chunks[i].Index = base + i
		chunks[i].ID = ids.ChunkID(e.collection, base+i, chunks[i].Text)
	}
	report := &Report{Collection: e.collection, NumChunks: len(chunks), Chunks: chunks}

	vectors, failed, err := e.embedAll(ctx, chunks)
	report.Embedded = len(chunks) - len(failed)
	report.Failed = failed
	if err != nil {
		report.Duration = time.Since(started)
		return report, err
	}
	if err := e.store.Write(ctx, e.collection, records(chunks, vectors)); err != nil {
		report.Duration = time.Since(started)
		return report, e.storageError("write", err)
	}
	report.Stored = true
	report.Duration = time.Since(started)
	e.logFinished("encoder appended", report)
	return report, nil
}

func records(chunks []models.Chunk, vectors [][]float32) []vector.Record {
	out := make([]vector.Record, len(chunks))
	for i, ch := range chunks {
		out[i] = vector.Record{ID: ch.ID, Vector: vectors[i], Text: ch.Text, Metadata: chunkMetadata(ch)}
	}
	return out
}

func (e *Encoder) storageError(op string, err error) error {
	var se *models.StorageError
	if errors.As(err, &se) {
		return err
	}
	return &models.StorageError{Op: op, Collection: e.collection, Err: err}
}

func (e *Encoder) logFinished(msg string, report *Report) {
	if e.logger == nil {
		return
	}
	e.logger.Info(msg,
		zap.String("collection", e.collection),
		zap.Int("chunks", report.NumChunks),
		zap.Bool("stored", report.Stored),
		zap.Duration("duration", report.Duration),
	)
}

// embedAll embeds chunks in batches with bounded parallelism. Vectors come back in chunk
// order. Every batch runs to completion so that all failed chunk ids are known.
func (e *Encoder) embedAll(ctx context.Context, chunks []models.Chunk) ([][]float32, []string, error) {
	vectors := make([][]float32, len(chunks))
	nBatches := (len(chunks) + e.batchSize - 1) / e.batchSize
	batchErrs := make([]error, nBatches)

	var g errgroup.Group
	g.SetLimit(e.parallelism)
	for b := 0; b < nBatches; b++ {
		start := b * e.batchSize
		end := start + e.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		g.Go(func() error {
			texts := make([]string, end-start)
			for i := range texts {
				texts[i] = chunks[start+i].Text
			}
			vecs, err := e.embedBatch(ctx, texts)
			if err != nil {
				batchErrs[b] = err
				return nil
			}
			copy(vectors[start:end], vecs)
			return nil
		})
	}
	_ = g.Wait()

	var failed []string
	var firstErr error
	for b, err := range batchErrs {
		if err == nil {
			continue
		}
		if firstErr == nil {
			firstErr = err
		}
		start := b * e.batchSize
		for i := start; i < start+e.batchSize && i < len(chunks); i++ {
			failed = append(failed, chunks[i].ID)
		}
	}
	if firstErr != nil {
		if e.logger != nil {
			e.logger.Warn("encoder embedding failed",
				zap.String("collection", e.collection),
				zap.Int("failed_chunks", len(failed)),
				zap.Int("total_chunks", len(chunks)),
				zap.Error(firstErr),
			)
		}
		return nil, failed, e.providerError(len(failed), len(chunks), firstErr)
	}
	return vectors, nil, nil
}

// embedBatch embeds one batch under the retry policy and validates the response shape.
func (e *Encoder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	policy := e.policy
	if e.logger != nil {
		policy.OnRetry = func(attempt int, delay time.Duration, err error) {
			e.logger.Warn("encoder retrying embedding batch",
				zap.String("collection", e.collection),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		}
	}
	err := policy.Do(ctx, func(ctx context.Context) error {
		vecs, err := e.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		if err := checkVectors(vecs, len(texts), e.embedder.Dimensions()); err != nil {
			return retry.Permanent(err)
		}
		out = vecs
		return nil
	})
	return out, err
}

func checkVectors(vecs [][]float32, want, dim int) error {
	if len(vecs) != want {
		return fmt.Errorf("provider returned %d vectors for %d texts", len(vecs), want)
	}
	for i, v := range vecs {
		if dim > 0 && len(v) != dim {
			return fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), dim)
		}
		if len(v) == 0 || len(v) != len(vecs[0]) {
			return fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), len(vecs[0]))
		}
	}
	return nil
}

func (e *Encoder) providerError(failed, total int, cause error) error {
	out := &models.ProviderError{Provider: e.provider, Op: "embed", Err: cause}
	var pe *models.ProviderError
	if errors.As(cause, &pe) {
		out.Provider, out.Op, out.Err = pe.Provider, pe.Op, pe.Err
	}
	out.Err = fmt.Errorf("%d of %d chunks failed: %w", failed, total, out.Err)
	return out
}

func chunkMetadata(ch models.Chunk) map[string]string {
	meta := make(map[string]string, len(ch.Metadata)+3)
	for k, v := range ch.Metadata {
		meta[k] = v
	}
	meta[models.MetaIndex] = strconv.Itoa(ch.Index)
	meta[models.MetaStart] = strconv.Itoa(ch.Start)
	meta[models.MetaEnd] = strconv.Itoa(ch.End)
	return meta
}
