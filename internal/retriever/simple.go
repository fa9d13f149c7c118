package retriever

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mentis/internal/encoder"
	"github.com/hyperjump/mentis/internal/models"
)

// DefaultSimpleCollection is SimpleRag's collection unless configured otherwise.
const DefaultSimpleCollection = "simple_rag"

// SimpleRag answers queries by nearest-neighbour search over raw diary chunks.
type SimpleRag struct {
	name string
	deps Deps
	enc  *encoder.Encoder
	topK int
}

// NewSimpleRag builds a SimpleRag writing to opts.Collection.
func NewSimpleRag(deps Deps, opts Options) (*SimpleRag, error) {
	if opts.Collection == "" {
		opts.Collection = DefaultSimpleCollection
	}
	if opts.Name == "" {
		opts.Name = KindSimple
	}
	enc, err := deps.encoder(opts.Collection, opts)
	if err != nil {
		return nil, err
	}
	return &SimpleRag{name: opts.Name, deps: deps, enc: enc, topK: opts.TopK}, nil
}

func (r *SimpleRag) Name() string       { return r.name }
func (r *SimpleRag) Collection() string { return r.enc.Collection() }

// Encode replaces the collection with the chunks of diary.
func (r *SimpleRag) Encode(ctx context.Context, diary string) (*encoder.Report, error) {
	return r.enc.Encode(ctx, true, diary)
}

// Append adds the chunks of entry after the stored ones.
func (r *SimpleRag) Append(ctx context.Context, entry string) (*encoder.Report, error) {
	return r.enc.Append(ctx, entry)
}

// Query returns the topK most similar chunks.
func (r *SimpleRag) Query(ctx context.Context, text string, topK int) (*models.RetrievalResult, error) {
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
	r.deps.logger().Debug("simple query", zap.String("retriever", r.name), zap.Int("passages", len(passages)))
	return newResult(r.name, text, started, passages), nil
}
