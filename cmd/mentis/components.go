package main

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/mentis/internal/config"
	"github.com/hyperjump/mentis/internal/embedding"
	"github.com/hyperjump/mentis/internal/eval"
	"github.com/hyperjump/mentis/internal/keyword"
	"github.com/hyperjump/mentis/internal/llm"
	"github.com/hyperjump/mentis/internal/retriever"
	"github.com/hyperjump/mentis/internal/retry"
	"github.com/hyperjump/mentis/internal/storage"
	"github.com/hyperjump/mentis/internal/summary"
	"github.com/hyperjump/mentis/internal/vector"
)

// Components holds initialized services.
type Components struct {
	Store      vector.Store
	Embedder   embedding.Embedder
	LLM        llm.Client
	Summarizer *summary.Summarizer
	Registry   *retriever.Registry
	config     *config.Config
	logger     *zap.Logger
}

// Close releases the retrievers, embedder and store, saving the summary cache.
func (c *Components) Close() {
	if c.Summarizer != nil {
		if err := c.Summarizer.SaveCache(); err != nil {
			c.logger.Warn("summary cache save failed", zap.Error(err))
		}
	}
	if c.Registry != nil {
		_ = c.Registry.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			c.logger.Warn("store close failed", zap.Error(err))
		}
	}
}

// Judge builds the LLM judge for evaluate, on the configured judge model.
func (c *Components) Judge() (eval.Judge, error) {
	client, err := newLLM(c.config, c.config.LLM.JudgeModel)
	if err != nil {
		return nil, err
	}
	return eval.NewLLMJudge(client,
		eval.WithJudgePrompt(c.config.Evaluation.JudgePrompt),
		eval.WithJudgeRetry(c.config.Retry.Policy()),
		eval.WithJudgeProvider(c.config.LLM.Provider),
		eval.WithJudgeLogger(c.logger),
	), nil
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Components{config: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	store, err := storage.Open(cfg.Storage.Backend, storePath(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Store = store

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = embedder
	logger.Info("embedder initialized",
		zap.String("provider", cfg.Embedding.Provider),
		zap.Int("dimensions", embedder.Dimensions()))

	deps := retriever.Deps{
		Embedder:     embedder,
		Store:        store,
		Retry:        cfg.Retry.Policy(),
		ProviderName: cfg.Embedding.Provider,
		Logger:       logger,
	}
	var retrievers []retriever.Retriever
	for _, rc := range cfg.Retrievers {
		r, err := c.newRetriever(deps, rc)
		if err != nil {
			for _, built := range retrievers {
				if h, isHybrid := built.(*retriever.HybridRag); isHybrid {
					_ = h.Close()
				}
			}
			return nil, fmt.Errorf("retriever %s: %w", rc.Name, err)
		}
		retrievers = append(retrievers, r)
	}
	reg, err := retriever.NewRegistry(retrievers...)
	if err != nil {
		return nil, err
	}
	c.Registry = reg
	ok = true
	return c, nil
}

func (c *Components) newRetriever(deps retriever.Deps, rc config.RetrieverConfig) (retriever.Retriever, error) {
	opts := retriever.Options{
		Name:        rc.Name,
		Collection:  rc.Collection,
		Chunking:    rc.Chunking,
		TopK:        rc.TopK,
		BatchSize:   c.config.Embedding.BatchSize,
		Parallelism: c.config.Embedding.Parallelism,
	}
	switch rc.Kind {
	case retriever.KindSimple:
		return retriever.NewSimpleRag(deps, opts)
	case retriever.KindSummary:
		summarizer, err := c.summarizer()
		if err != nil {
			return nil, err
		}
		return retriever.NewSummaryRag(deps, summarizer, retriever.SummaryOptions{Options: opts, GroupSize: rc.GroupSize})
	case retriever.KindHybrid:
		var rewriter retriever.QueryRewriter
		if rc.RewriteQueries {
			client, err := c.llm()
			if err != nil {
				return nil, err
			}
			rewriter = retriever.NewLLMRewriter(client, rc.RewritePrompt, c.config.Retry.Policy(), c.logger)
		}
		index, err := keyword.NewBleveIndex(c.config.KeywordIndexPath(rc.Name))
		if err != nil {
			return nil, fmt.Errorf("failed to open keyword index: %w", err)
		}
		h, err := retriever.NewHybridRag(deps, index, retriever.HybridOptions{
			Options:        opts,
			KeywordWeight:  rc.KeywordWeight,
			SemanticWeight: rc.SemanticWeight,
			Search: keyword.SearchOptions{
				DateBoost:   rc.DateBoost,
				PhraseBoost: rc.PhraseBoost,
				Fuzziness:   rc.Fuzziness,
			},
			MinScore: rc.MinScore,
			Rewriter: rewriter,
		})
		if err != nil {
			_ = index.Close()
			return nil, err
		}
		return h, nil
	default:
		return nil, fmt.Errorf("unknown retriever kind %q", rc.Kind)
	}
}

// summarizer lazily builds the shared summarizer, so configs without a summary retriever
// need no LLM credentials.
func (c *Components) summarizer() (*summary.Summarizer, error) {
	if c.Summarizer != nil {
		return c.Summarizer, nil
	}
	client, err := c.llm()
	if err != nil {
		return nil, err
	}
	cache, err := summary.OpenCache(c.config.Summary.CachePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open summary cache: %w", err)
	}
	c.Summarizer = summary.NewSummarizer(client,
		summary.WithPrompt(c.config.Summary.Prompt),
		summary.WithRetry(c.config.Retry.Policy()),
		summary.WithCache(cache),
		summary.WithLogger(c.logger),
	)
	return c.Summarizer, nil
}

// llm returns the shared completion client used for summaries, query rewriting and chat.
func (c *Components) llm() (llm.Client, error) {
	if c.LLM != nil {
		return c.LLM, nil
	}
	client, err := newLLM(c.config, c.config.LLM.Model)
	if err != nil {
		return nil, err
	}
	c.LLM = client
	return client, nil
}

func newLLM(cfg *config.Config, model string) (llm.Client, error) {
	key, err := cfg.LLMAPIKey()
	if err != nil {
		return nil, err
	}
	return llm.NewOpenAI(llm.OpenAIOptions{
		APIKey:      key,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       model,
		Temperature: cfg.LLM.Temperature,
		Limiter:     retry.NewLimiter(cfg.LLM.RequestsPerSecond, 1),
	})
}

func newEmbedder(cfg *config.Config) (embedding.Embedder, error) {
	ec := cfg.Embedding
	switch ec.Provider {
	case embedding.ProviderOpenAI:
		key, err := cfg.EmbeddingAPIKey()
		if err != nil {
			return nil, err
		}
		return embedding.NewOpenAIEmbedder(embedding.OpenAIOptions{
			APIKey:     key,
			BaseURL:    ec.BaseURL,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
			BatchSize:  ec.BatchSize,
			CacheSize:  ec.CacheSize,
			Limiter:    retry.NewLimiter(ec.RequestsPerSecond, 1),
		})
	case embedding.ProviderONNX:
		return embedding.NewONNXEmbedder(embedding.ONNXOptions{
			ModelPath:  ec.ModelPath,
			Dimensions: ec.Dimensions,
			MaxTokens:  ec.MaxTokens,
			CacheSize:  ec.CacheSize,
		})
	case embedding.ProviderMock:
		dims := ec.Dimensions
		if dims <= 0 {
			dims = 384
		}
		return embedding.NewMockEmbedder(dims), nil
	default:
		return nil, errors.New("unknown embedding provider: " + ec.Provider)
	}
}
