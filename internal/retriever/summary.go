package retriever

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mentis/internal/encoder"
	"github.com/hyperjump/mentis/internal/models"
	"github.com/hyperjump/mentis/internal/summary"
)

// DefaultSummaryCollection is SummaryRag's summary collection unless configured otherwise.
const DefaultSummaryCollection = "summary_rag"

// SummaryOptions extend Options with the grouping policy.
type SummaryOptions struct {
	Options
	// GroupSize is the number of consecutive chunks condensed into one summary.
	GroupSize int
}

// SummaryRag answers queries from LLM summaries of chunk groups. Raw chunks live in
// "<collection>_chunks" and summaries in "<collection>".
type SummaryRag struct {
	name       string
	deps       Deps
	chunks     *encoder.Encoder
	summaries  *encoder.Encoder
	summarizer *summary.Summarizer
	groupSize  int
	topK       int
}

// NewSummaryRag builds a SummaryRag. The summarizer carries the LLM client and summary cache.
func NewSummaryRag(deps Deps, summarizer *summary.Summarizer, opts SummaryOptions) (*SummaryRag, error) {
	if summarizer == nil {
		return nil, &models.ConfigError{Field: "llm", Err: fmt.Errorf("summary retriever requires an LLM")}
	}
	if opts.Collection == "" {
		opts.Collection = DefaultSummaryCollection
	}
	if opts.Name == "" {
		opts.Name = KindSummary
	}
	if opts.GroupSize <= 0 {
		opts.GroupSize = 1
	}
	chunks, err := deps.encoder(opts.Collection+"_chunks", opts.Options)
	if err != nil {
		return nil, err
	}
	summaries, err := deps.encoder(opts.Collection, opts.Options)
	if err != nil {
		return nil, err
	}
	return &SummaryRag{
		name:       opts.Name,
		deps:       deps,
		chunks:     chunks,
		summaries:  summaries,
		summarizer: summarizer,
		groupSize:  opts.GroupSize,
		topK:       opts.TopK,
	}, nil
}

func (r *SummaryRag) Name() string       { return r.name }
func (r *SummaryRag) Collection() string { return r.summaries.Collection() }

// ChunkCollection is where the raw chunks behind the summaries are stored.
func (r *SummaryRag) ChunkCollection() string { return r.chunks.Collection() }

// Encode stores the diary's chunks, then summarizes and stores the summaries. If summarizing
// fails the chunks stay stored and EncodeSummaries can retry the summary step alone.
func (r *SummaryRag) Encode(ctx context.Context, diary string) (*encoder.Report, error) {
	chunkReport, err := r.chunks.Encode(ctx, true, diary)
	if err != nil {
		return chunkReport, err
	}
	return r.encodeSummaries(ctx, chunkReport.Chunks)
}

// EncodeSummaries rebuilds the summary collection from the chunks already stored.
func (r *SummaryRag) EncodeSummaries(ctx context.Context) (*encoder.Report, error) {
	records, err := r.deps.Store.List(ctx, r.ChunkCollection())
	if err != nil {
		return nil, err
	}
	chunks := make([]models.Chunk, len(records))
	for i, rec := range records {
		idx, _ := strconv.Atoi(rec.Metadata[models.MetaIndex])
		chunks[i] = models.Chunk{ID: rec.ID, Index: idx, Text: rec.Text, Metadata: rec.Metadata}
	}
	return r.encodeSummaries(ctx, chunks)
}

func (r *SummaryRag) encodeSummaries(ctx context.Context, chunks []models.Chunk) (*encoder.Report, error) {
	groups := summary.Group(chunks, r.groupSize)
	sums, err := r.summarizer.SummarizeGroups(ctx, r.Collection(), groups)
	// Completed groups are cached even when a later one fails.
	if cacheErr := r.summarizer.SaveCache(); cacheErr != nil {
		r.deps.logger().Warn("failed to save summary cache", zap.Error(cacheErr))
	}
	if err != nil {
		return &encoder.Report{Collection: r.Collection(), NumChunks: len(groups)}, err
	}
	out := make([]models.Chunk, len(sums))
	for i, s := range sums {
		meta := map[string]string{models.MetaSourceChunkIDs: JoinSourceIDs(s.SourceChunkIDs)}
		if date := groups[i][0].Metadata[models.MetaDate]; date != "" {
			meta[models.MetaDate] = date
		}
		out[i] = models.Chunk{ID: s.ID, Text: s.Text, Metadata: meta}
	}
	r.deps.logger().Info("summarized diary",
		zap.String("retriever", r.name),
		zap.Int("chunks", len(chunks)),
		zap.Int("summaries", len(out)),
	)
	return r.summaries.EncodeChunks(ctx, true, out)
}

// Query returns the topK most similar summaries with their source chunk ids.
func (r *SummaryRag) Query(ctx context.Context, text string, topK int) (*models.RetrievalResult, error) {
	started := time.Now()
	text, topK, err := normalizeQuery(text, topK, r.topK)
	if err != nil {
		return nil, err
	}
	hits, err := r.deps.search(ctx, r.Collection(), text, topK)
	if err != nil {
		return nil, err
	}
	passages := make([]*models.Passage, len(hits))
	for i, h := range hits {
		passages[i] = passageFromHit(h)
	}
	return newResult(r.name, text, started, passages), nil
}
