package config

import (
	"fmt"

	"github.com/hyperjump/mentis/internal/embedding"
	"github.com/hyperjump/mentis/internal/encoder"
	"github.com/hyperjump/mentis/internal/models"
	"github.com/hyperjump/mentis/internal/retriever"
	"github.com/hyperjump/mentis/internal/storage"
)

// Validate checks backends, providers and every retriever declaration. Errors are ConfigErrors.
func (c *Config) Validate() error {
	switch storage.Backend(c.Storage.Backend) {
	case storage.BackendSQLite, storage.BackendMemory:
	default:
		return &models.ConfigError{Field: "storage.backend", Err: fmt.Errorf("unknown backend %q (supported: sqlite, memory)", c.Storage.Backend)}
	}
	switch c.Embedding.Provider {
	case embedding.ProviderOpenAI, embedding.ProviderONNX, embedding.ProviderMock:
	default:
		return &models.ConfigError{Field: "embedding.provider", Err: fmt.Errorf("unknown provider %q (supported: openai, onnx, mock)", c.Embedding.Provider)}
	}
	if c.LLM.Provider != "openai" {
		return &models.ConfigError{Field: "llm.provider", Err: fmt.Errorf("unknown provider %q (supported: openai)", c.LLM.Provider)}
	}
	if c.Retry.MaxAttempts < 1 {
		return &models.ConfigError{Field: "retry.max_attempts", Err: fmt.Errorf("must be at least 1, got %d", c.Retry.MaxAttempts)}
	}

	seenNames := make(map[string]bool, len(c.Retrievers))
	seenCollections := make(map[string]string)
	for i, r := range c.Retrievers {
		field := fmt.Sprintf("retrievers[%d]", i)
		if r.Name == "" {
			return &models.ConfigError{Field: field + ".name", Err: fmt.Errorf("is required")}
		}
		if seenNames[r.Name] {
			return &models.ConfigError{Field: field + ".name", Err: fmt.Errorf("duplicate retriever %q", r.Name)}
		}
		seenNames[r.Name] = true
		switch r.Kind {
		case retriever.KindSimple, retriever.KindSummary, retriever.KindHybrid:
		default:
			return &models.ConfigError{Field: field + ".kind", Err: fmt.Errorf("unknown kind %q (supported: simple, summary, hybrid)", r.Kind)}
		}
		if _, err := encoder.NewChunker(r.Chunking); err != nil {
			return &models.ConfigError{Field: field + ".chunking", Err: err}
		}
		if r.MinScore < 0 || r.MinScore > 1 {
			return &models.ConfigError{Field: field + ".min_score", Err: fmt.Errorf("must be within [0,1], got %g", r.MinScore)}
		}
		if (r.RewriteQueries || r.MinScore > 0) && r.Kind != retriever.KindHybrid {
			return &models.ConfigError{Field: field, Err: fmt.Errorf("min_score and rewrite_queries apply to hybrid retrievers only")}
		}
		collections := []string{r.Collection}
		if r.Kind == retriever.KindSummary {
			collections = append(collections, r.Collection+"_chunks")
		}
		for _, col := range collections {
			if other, ok := seenCollections[col]; ok {
				return &models.ConfigError{Field: field + ".collection", Err: fmt.Errorf("collection %q already used by %q", col, other)}
			}
			seenCollections[col] = r.Name
		}
	}
	for _, name := range append(append([]string(nil), c.Chat.Retrievers...), c.Watch.Retrievers...) {
		if !seenNames[name] {
			return &models.ConfigError{Field: "retrievers", Err: fmt.Errorf("%w %q", retriever.ErrUnknownRetriever, name)}
		}
	}
	return nil
}
