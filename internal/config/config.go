// Package config provides configuration loading and structs for Mentis.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/mentis/internal/encoder"
	"github.com/hyperjump/mentis/internal/models"
	"github.com/hyperjump/mentis/internal/retry"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool              `yaml:"debug"`
	LogLevel   string            `yaml:"log_level"`
	DataDir    string            `yaml:"data_dir"`
	DiaryPath  string            `yaml:"diary_path"`
	Server     ServerConfig      `yaml:"server"`
	Storage    StorageConfig     `yaml:"storage"`
	Embedding  EmbeddingConfig   `yaml:"embedding"`
	LLM        LLMConfig         `yaml:"llm"`
	Retry      RetryConfig       `yaml:"retry"`
	Retrievers []RetrieverConfig `yaml:"retrievers"`
	Summary    SummaryConfig     `yaml:"summary"`
	Evaluation EvaluationConfig  `yaml:"evaluation"`
	Chat       ChatConfig        `yaml:"chat"`
	Watch      WatchConfig       `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig selects the vector store backend and its files.
type StorageConfig struct {
	// Backend is "sqlite" or "memory".
	Backend      string `yaml:"backend"`
	DatabasePath string `yaml:"database_path"`
	// SnapshotPath persists the memory backend; empty keeps it in memory only.
	SnapshotPath     string `yaml:"snapshot_path"`
	KeywordIndexPath string `yaml:"keyword_index_path"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider is "openai", "onnx" or "mock".
	Provider          string  `yaml:"provider"`
	Model             string  `yaml:"model"`
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Dimensions        int     `yaml:"dimensions"`
	BatchSize         int     `yaml:"batch_size"`
	Parallelism       int     `yaml:"parallelism"`
	CacheSize         int     `yaml:"cache_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// ModelPath and MaxTokens apply to the onnx provider.
	ModelPath string `yaml:"model_path"`
	MaxTokens int    `yaml:"max_tokens"`
}

// LLMConfig holds the completion model used for summaries, judging and chat.
type LLMConfig struct {
	Provider          string   `yaml:"provider"`
	Model             string   `yaml:"model"`
	JudgeModel        string   `yaml:"judge_model"`
	BaseURL           string   `yaml:"base_url"`
	APIKeyEnv         string   `yaml:"api_key_env"`
	Temperature       *float64 `yaml:"temperature"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
}

// RetryConfig is the bounded retry policy for provider calls.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// Policy converts the config to a retry.Policy.
func (r RetryConfig) Policy() retry.Policy {
	return retry.Policy{MaxAttempts: r.MaxAttempts, BaseDelay: r.BaseDelay, MaxDelay: r.MaxDelay}
}

// RetrieverConfig declares one named retriever.
type RetrieverConfig struct {
	Name string `yaml:"name"`
	// Kind is "simple", "summary" or "hybrid"; defaults to Name.
	Kind       string                  `yaml:"kind"`
	Collection string                  `yaml:"collection"`
	Chunking   encoder.ChunkingOptions `yaml:"chunking"`
	TopK       int                     `yaml:"top_k"`
	// GroupSize applies to summary retrievers.
	GroupSize int `yaml:"group_size"`
	// The remaining fields apply to hybrid retrievers.
	KeywordWeight  float64 `yaml:"keyword_weight"`
	SemanticWeight float64 `yaml:"semantic_weight"`
	DateBoost      float64 `yaml:"date_boost"`
	PhraseBoost    float64 `yaml:"phrase_boost"`
	Fuzziness      int     `yaml:"fuzziness"`
	// MinScore drops fused passages below it, in [0,1].
	MinScore float64 `yaml:"min_score"`
	// RewriteQueries asks the LLM for reformulations of every query.
	RewriteQueries bool   `yaml:"rewrite_queries"`
	RewritePrompt  string `yaml:"rewrite_prompt"`
}

// SummaryConfig holds summarization settings.
type SummaryConfig struct {
	Prompt    string `yaml:"prompt"`
	CachePath string `yaml:"cache_path"`
}

// EvaluationConfig holds evaluation harness settings.
type EvaluationConfig struct {
	QueriesPath string `yaml:"queries_path"`
	ResultsDir  string `yaml:"results_dir"`
	TopK        int    `yaml:"top_k"`
	JudgePrompt string `yaml:"judge_prompt"`
}

// ChatConfig holds chat settings.
type ChatConfig struct {
	// Retrievers answer every chat message, in order. Empty means all configured retrievers.
	Retrievers []string `yaml:"retrievers"`
	TopK       int      `yaml:"top_k"`
}

// WatchConfig holds diary watch settings.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
	// Retrievers re-encoded on change. Empty means all.
	Retrievers []string `yaml:"retrievers"`
}

// LoadEnv loads .env files into the process environment without overriding variables that
// are already set. Missing files are skipped.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads and parses the config file at path, applies defaults and expands paths.
// A .env file next to the config is loaded first. Returns an error if the file cannot be
// read or parsed, or if the result is invalid.
func Load(path string) (*Config, error) {
	configDir := filepath.Dir(path)
	if err := LoadEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	cfg.expandPaths(configDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) expandPaths(configDir string) {
	c.DataDir = expandPath(c.DataDir, configDir)
	for _, p := range []*string{
		&c.DiaryPath,
		&c.Storage.DatabasePath,
		&c.Storage.SnapshotPath,
		&c.Storage.KeywordIndexPath,
		&c.Embedding.ModelPath,
		&c.Summary.CachePath,
		&c.Evaluation.QueriesPath,
		&c.Evaluation.ResultsDir,
	} {
		if *p != "" {
			*p = expandPath(*p, configDir)
		}
	}
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Retriever returns the retriever config called name.
func (c *Config) Retriever(name string) (RetrieverConfig, bool) {
	for _, r := range c.Retrievers {
		if r.Name == name {
			return r, true
		}
	}
	return RetrieverConfig{}, false
}

// RetrieverNames returns the configured names in declaration order.
func (c *Config) RetrieverNames() []string {
	names := make([]string, len(c.Retrievers))
	for i, r := range c.Retrievers {
		names[i] = r.Name
	}
	return names
}

// KeywordIndexPath returns the keyword index directory for a hybrid retriever.
func (c *Config) KeywordIndexPath(retriever string) string {
	return filepath.Join(c.Storage.KeywordIndexPath, retriever+".bleve")
}

// EmbeddingAPIKey returns the embedding provider's API key from the environment.
func (c *Config) EmbeddingAPIKey() (string, error) {
	return apiKey("embedding.api_key_env", c.Embedding.APIKeyEnv)
}

// LLMAPIKey returns the LLM provider's API key from the environment.
func (c *Config) LLMAPIKey() (string, error) {
	return apiKey("llm.api_key_env", c.LLM.APIKeyEnv)
}

func apiKey(field, env string) (string, error) {
	key := strings.TrimSpace(os.Getenv(env))
	if key == "" {
		return "", &models.ConfigError{Field: field, Err: fmt.Errorf("environment variable %s is not set", env)}
	}
	return key, nil
}

// expandPath converts a path to absolute. "~/" paths are relative to the home directory;
// other relative paths are relative to configDir.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
		return path
	}
	abs, err := filepath.Abs(filepath.Join(configDir, path))
	if err != nil {
		return filepath.Join(configDir, path)
	}
	return abs
}
