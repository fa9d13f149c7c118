package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hyperjump/mentis/internal/models"
	"github.com/hyperjump/mentis/internal/retry"
)

const (
	// DefaultOpenAIModel is the embedding model used when none is configured.
	DefaultOpenAIModel = "text-embedding-ada-002"
	// maxOpenAIBatch is the largest input array accepted by the embeddings endpoint.
	maxOpenAIBatch = 2048
)

// OpenAIOptions configures an OpenAIEmbedder.
type OpenAIOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	BatchSize  int
	CacheSize  int
	Limiter    *retry.Limiter
}

// OpenAIEmbedder calls the OpenAI embeddings API. Retries are left to the caller's policy.
type OpenAIEmbedder struct {
	client     openai.Client
	model      string
	dimensions int
	batchSize  int
	sendDims   bool
	cache      *EmbeddingCache
	limiter    *retry.Limiter
}

// NewOpenAIEmbedder builds an embedder. The API key is required.
func NewOpenAIEmbedder(opts OpenAIOptions) (*OpenAIEmbedder, error) {
	if opts.APIKey == "" {
		return nil, &models.ConfigError{Field: "OPENAI_API_KEY", Err: fmt.Errorf("required for the openai embedding provider")}
	}
	if opts.Model == "" {
		opts.Model = DefaultOpenAIModel
	}
	sendDims := opts.Dimensions > 0 && strings.HasPrefix(opts.Model, "text-embedding-3")
	if opts.Dimensions <= 0 {
		opts.Dimensions = defaultOpenAIDimensions(opts.Model)
	}
	if opts.BatchSize <= 0 || opts.BatchSize > maxOpenAIBatch {
		opts.BatchSize = maxOpenAIBatch
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey), option.WithMaxRetries(0)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &OpenAIEmbedder{
		client:     openai.NewClient(reqOpts...),
		model:      opts.Model,
		dimensions: opts.Dimensions,
		batchSize:  opts.BatchSize,
		sendDims:   sendDims,
		cache:      NewEmbeddingCache(opts.CacheSize),
		limiter:    opts.Limiter,
	}, nil
}

func defaultOpenAIDimensions(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	default:
		return 1536
	}
}

// Embed returns the embedding for a single text, using the query cache when possible.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, out[0])
	return out[0], nil
}

// EmbedBatch embeds texts in request-sized slices and returns vectors in input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.embedRequest(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *OpenAIEmbedder) embedRequest(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, e.fail(err)
	}
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	}
	if e.sendDims {
		params.Dimensions = openai.Int(int64(e.dimensions))
	}
	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, e.fail(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, e.fail(fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		i := int(d.Index)
		if i < 0 || i >= len(out) || out[i] != nil {
			return nil, e.fail(fmt.Errorf("unexpected embedding index %d", d.Index))
		}
		if len(d.Embedding) != e.dimensions {
			return nil, e.fail(fmt.Errorf("embedding dimension %d, expected %d", len(d.Embedding), e.dimensions))
		}
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}

func (e *OpenAIEmbedder) fail(err error) error {
	return &models.ProviderError{Provider: ProviderOpenAI, Op: "embed", Err: err}
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Model returns the configured model name.
func (e *OpenAIEmbedder) Model() string {
	return e.model
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
