package config

import (
	"path/filepath"
	"time"

	"github.com/hyperjump/mentis/internal/encoder"
	"github.com/hyperjump/mentis/internal/retriever"
)

// DefaultRetrievers returns simple, summary and hybrid retrievers with the stock chunking:
// 400 character windows overlapping by 200 for raw chunks, one diary entry per summary.
func DefaultRetrievers() []RetrieverConfig {
	window := encoder.ChunkingOptions{Policy: encoder.PolicyWindow, Size: 400, Overlap: 200}
	return []RetrieverConfig{
		{Name: retriever.KindSimple, Collection: retriever.DefaultSimpleCollection, Chunking: window},
		{Name: retriever.KindSummary, Collection: retriever.DefaultSummaryCollection,
			Chunking: encoder.ChunkingOptions{Policy: encoder.PolicyEntries, MinLength: 10}, GroupSize: 1},
		{Name: retriever.KindHybrid, Collection: retriever.DefaultHybridCollection, Chunking: window},
	}
}

// ApplyDefaults sets default values for any zero values in cfg. Paths are left relative;
// Load expands them.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.DiaryPath == "" {
		cfg.DiaryPath = "./diary.txt"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = filepath.Join(cfg.DataDir, "mentis.db")
	}
	if cfg.Storage.KeywordIndexPath == "" {
		cfg.Storage.KeywordIndexPath = filepath.Join(cfg.DataDir, "keyword")
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 64
	}
	if cfg.Embedding.Parallelism == 0 {
		cfg.Embedding.Parallelism = 4
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Provider == "onnx" {
		if cfg.Embedding.Dimensions == 0 {
			cfg.Embedding.Dimensions = 384
		}
		if cfg.Embedding.MaxTokens == 0 {
			cfg.Embedding.MaxTokens = 256
		}
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.JudgeModel == "" {
		cfg.LLM.JudgeModel = cfg.LLM.Model
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = time.Second
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 10 * time.Second
	}
	if len(cfg.Retrievers) == 0 {
		cfg.Retrievers = DefaultRetrievers()
	}
	for i := range cfg.Retrievers {
		r := &cfg.Retrievers[i]
		if r.Kind == "" {
			r.Kind = r.Name
		}
		if r.Collection == "" {
			r.Collection = r.Name
		}
		if r.Chunking.Policy == "" {
			r.Chunking.Policy = encoder.PolicyWindow
		}
		if r.Chunking.Policy == encoder.PolicyWindow && r.Chunking.Size == 0 {
			r.Chunking.Size, r.Chunking.Overlap = 400, 200
		}
		if r.Kind == retriever.KindSummary && r.GroupSize == 0 {
			r.GroupSize = 1
		}
	}
	if cfg.Summary.CachePath == "" {
		cfg.Summary.CachePath = filepath.Join(cfg.DataDir, "summary-cache.json")
	}
	if cfg.Evaluation.QueriesPath == "" {
		cfg.Evaluation.QueriesPath = "./queries.json"
	}
	if cfg.Evaluation.ResultsDir == "" {
		cfg.Evaluation.ResultsDir = filepath.Join(cfg.DataDir, "results")
	}
	if cfg.Evaluation.TopK == 0 {
		cfg.Evaluation.TopK = 5
	}
	if cfg.Chat.TopK == 0 {
		cfg.Chat.TopK = 5
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 2 * time.Second
	}
}
