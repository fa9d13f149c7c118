package retriever

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mentis/internal/encoder"
	"github.com/hyperjump/mentis/internal/keyword"
	"github.com/hyperjump/mentis/internal/models"
	"github.com/hyperjump/mentis/internal/vector"
)

const (
	// DefaultHybridCollection is HybridRag's collection unless configured otherwise.
	DefaultHybridCollection = "hybrid_rag"

	DefaultKeywordWeight  = 0.3
	DefaultSemanticWeight = 0.7

	// candidates fetched from each side per requested passage
	candidateFactor = 4
	minCandidates   = 20
)

// HybridOptions extend Options with the keyword side of the fusion.
type HybridOptions struct {
	Options
	KeywordWeight  float64
	SemanticWeight float64
	Search         keyword.SearchOptions
	// MinScore drops fused passages scoring below it.
	MinScore float64
	// Rewriter, when set, adds reformulations of each query; passages keep their best score
	// over the original and the rewrites.
	Rewriter QueryRewriter
}

// HybridRag fuses BM25 keyword scores with vector similarity over raw chunks.
type HybridRag struct {
	name     string
	deps     Deps
	enc      *encoder.Encoder
	index    keyword.Index
	kw, sem  float64
	search   keyword.SearchOptions
	minScore float64
	rewriter QueryRewriter
	topK     int
}

// NewHybridRag builds a HybridRag. It takes ownership of index.
func NewHybridRag(deps Deps, index keyword.Index, opts HybridOptions) (*HybridRag, error) {
	if index == nil {
		return nil, &models.ConfigError{Field: "keyword index", Err: fmt.Errorf("hybrid retriever requires a keyword index")}
	}
	if opts.Collection == "" {
		opts.Collection = DefaultHybridCollection
	}
	if opts.Name == "" {
		opts.Name = KindHybrid
	}
	if opts.KeywordWeight <= 0 && opts.SemanticWeight <= 0 {
		opts.KeywordWeight, opts.SemanticWeight = DefaultKeywordWeight, DefaultSemanticWeight
	}
	enc, err := deps.encoder(opts.Collection, opts.Options)
	if err != nil {
		return nil, err
	}
	return &HybridRag{
		name:     opts.Name,
		deps:     deps,
		enc:      enc,
		index:    index,
		kw:       opts.KeywordWeight,
		sem:      opts.SemanticWeight,
		search:   opts.Search,
		minScore: opts.MinScore,
		rewriter: opts.Rewriter,
		topK:     opts.TopK,
	}, nil
}

func (r *HybridRag) Name() string       { return r.name }
func (r *HybridRag) Collection() string { return r.enc.Collection() }

// Encode replaces the vector collection, then the keyword index, with the chunks of diary.
func (r *HybridRag) Encode(ctx context.Context, diary string) (*encoder.Report, error) {
	report, err := r.enc.Encode(ctx, true, diary)
	if err != nil {
		return report, err
	}
	if err := r.index.Replace(ctx, keywordDocs(report.Chunks)); err != nil {
		return report, &models.StorageError{Op: "index keywords", Collection: r.Collection(), Err: err}
	}
	return report, nil
}

// Append adds the chunks of entry to the vector collection, then to the keyword index.
func (r *HybridRag) Append(ctx context.Context, entry string) (*encoder.Report, error) {
	report, err := r.enc.Append(ctx, entry)
	if err != nil {
		return report, err
	}
	if err := r.index.Add(ctx, keywordDocs(report.Chunks)); err != nil {
		return report, &models.StorageError{Op: "index keywords", Collection: r.Collection(), Err: err}
	}
	return report, nil
}

func keywordDocs(chunks []models.Chunk) []keyword.Doc {
	docs := make([]keyword.Doc, len(chunks))
	for i, ch := range chunks {
		docs[i] = keyword.Doc{ID: ch.ID, Text: ch.Text, Date: ch.Metadata[models.MetaDate]}
	}
	return docs
}

// Query fuses keyword and semantic candidates and returns the topK best chunks scoring at
// least the configured minimum.
func (r *HybridRag) Query(ctx context.Context, text string, topK int) (*models.RetrievalResult, error) {
	started := time.Now()
	text, topK, err := normalizeQuery(text, topK, r.topK)
	if err != nil {
		return nil, err
	}
	n := topK * candidateFactor
	if n < minCandidates {
		n = minCandidates
	}

	queries := r.expand(ctx, text)
	best := make(map[string]*FusedResult)
	byID := make(map[string]vector.Hit)
	var numSemantic, numKeyword int
	for _, q := range queries {
		hits, err := r.deps.search(ctx, r.Collection(), q, n)
		if err != nil {
			return nil, err
		}
		kwResults, err := r.index.Search(ctx, q, n, &r.search)
		if err != nil {
			return nil, &models.StorageError{Op: "keyword search", Collection: r.Collection(), Err: err}
		}
		numSemantic += len(hits)
		numKeyword += len(kwResults)
		for _, h := range hits {
			byID[h.ID] = h
		}
		for _, f := range Fuse(NormalizeKeywordScores(kwResults), SemanticScores(hits), r.kw, r.sem) {
			if cur, ok := best[f.ID]; !ok || f.Score > cur.Score {
				best[f.ID] = f
			}
		}
	}

	fused := make([]*FusedResult, 0, len(best))
	for _, f := range best {
		if f.Score >= r.minScore {
			fused = append(fused, f)
		}
	}
	sortFused(fused)
	if len(fused) > topK {
		fused = fused[:topK]
	}

	var missing []string
	for _, f := range fused {
		if _, ok := byID[f.ID]; !ok {
			missing = append(missing, f.ID)
		}
	}
	if len(missing) > 0 {
		records, err := r.deps.Store.Get(ctx, r.Collection(), missing)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			byID[rec.ID] = vector.Hit{ID: rec.ID, Text: rec.Text, Metadata: rec.Metadata}
		}
	}

	passages := make([]*models.Passage, 0, len(fused))
	for _, f := range fused {
		h, ok := byID[f.ID]
		if !ok {
			// keyword index ahead of the vector store; skip until the next encode
			continue
		}
		p := passageFromHit(h)
		p.Score = f.Score
		passages = append(passages, p)
	}
	r.deps.logger().Debug("hybrid query",
		zap.String("retriever", r.name),
		zap.Int("queries", len(queries)),
		zap.Int("semantic", numSemantic),
		zap.Int("keyword", numKeyword),
		zap.Int("passages", len(passages)),
	)
	return newResult(r.name, text, started, passages), nil
}

// expand returns text followed by its rewrites. A failed rewrite falls back to text alone.
func (r *HybridRag) expand(ctx context.Context, text string) []string {
	queries := []string{text}
	if r.rewriter == nil {
		return queries
	}
	rewrites, err := r.rewriter.Rewrite(ctx, text)
	if err != nil {
		r.deps.logger().Warn("query rewrite failed, using the original query",
			zap.String("retriever", r.name), zap.Error(err))
		return queries
	}
	for _, q := range rewrites {
		if !strings.EqualFold(q, text) {
			queries = append(queries, q)
		}
	}
	return queries
}

// Close closes the keyword index.
func (r *HybridRag) Close() error {
	return r.index.Close()
}
