package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/mentis/internal/encoder"
	"github.com/hyperjump/mentis/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
retry:
  base_delay: 250ms
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath != filepath.Join(filepath.Dir(path), "test.db") {
		t.Errorf("database_path = %q", cfg.Storage.DatabasePath)
	}
	if cfg.Retry.BaseDelay != 250*time.Millisecond || cfg.Retry.MaxDelay != 10*time.Second || cfg.Retry.MaxAttempts != 3 {
		t.Errorf("unexpected retry config: %+v", cfg.Retry)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_defaultRetrievers(t *testing.T) {
	cfg, err := Load(writeConfig(t, "debug: true\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
	names := cfg.RetrieverNames()
	if len(names) != 3 || names[0] != "simple" || names[1] != "summary" || names[2] != "hybrid" {
		t.Fatalf("unexpected retrievers: %v", names)
	}
	simple, _ := cfg.Retriever("simple")
	if simple.Collection != "simple_rag" || simple.Chunking.Size != 400 || simple.Chunking.Overlap != 200 {
		t.Errorf("unexpected simple retriever: %+v", simple)
	}
	summary, _ := cfg.Retriever("summary")
	if summary.Chunking.Policy != encoder.PolicyEntries || summary.GroupSize != 1 {
		t.Errorf("unexpected summary retriever: %+v", summary)
	}
	if _, ok := cfg.Retriever("missing"); ok {
		t.Error("unknown retriever should not be found")
	}
}

func TestLoad_customRetrieverDefaultsKindAndCollection(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
retrievers:
  - name: summary
    group_size: 3
  - name: wide
    kind: simple
    chunking:
      policy: sentences
      size: 4
`))
	if err != nil {
		t.Fatal(err)
	}
	wide, ok := cfg.Retriever("wide")
	if !ok {
		t.Fatal("wide retriever missing")
	}
	if wide.Kind != "simple" || wide.Collection != "wide" || wide.Chunking.Policy != encoder.PolicySentences {
		t.Errorf("unexpected wide retriever: %+v", wide)
	}
	summary, _ := cfg.Retriever("summary")
	if summary.Kind != "summary" || summary.GroupSize != 3 || summary.Chunking.Size != 400 {
		t.Errorf("unexpected summary retriever: %+v", summary)
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
diary_path: "./diary/entries.txt"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(filepath.Dir(path), "diary", "entries.txt")
	if cfg.DiaryPath != want {
		t.Errorf("diary_path = %q, want %q", cfg.DiaryPath, want)
	}
	if cfg.Evaluation.ResultsDir != filepath.Join(filepath.Dir(path), "data", "results") {
		t.Errorf("results_dir = %q", cfg.Evaluation.ResultsDir)
	}
}

func TestLoad_expandPathTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	cfg, err := Load(writeConfig(t, `diary_path: "~/diary.txt"`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DiaryPath != filepath.Join(home, "diary.txt") {
		t.Errorf("diary_path = %q", cfg.DiaryPath)
	}
}

func TestLoad_absolutePathUnchanged(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "abs.db")
	cfg, err := Load(writeConfig(t, "storage:\n  database_path: "+abs+"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.DatabasePath != abs {
		t.Errorf("database_path = %q, want %q", cfg.Storage.DatabasePath, abs)
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config")
	}
}

func TestLoad_invalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "server: [unclosed")); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Config)
		field string
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "faiss" }, "storage.backend"},
		{"unknown embedding provider", func(c *Config) { c.Embedding.Provider = "cohere" }, "embedding.provider"},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = -1 }, "retry.max_attempts"},
		{"unknown kind", func(c *Config) { c.Retrievers[0].Kind = "graph" }, "retrievers[0].kind"},
		{"duplicate name", func(c *Config) { c.Retrievers[1].Name = c.Retrievers[0].Name }, "retrievers[1].name"},
		{"shared collection", func(c *Config) { c.Retrievers[2].Collection = c.Retrievers[0].Collection }, "retrievers[2].collection"},
		{"summary chunk collection clash", func(c *Config) { c.Retrievers[2].Collection = "summary_rag_chunks" }, "retrievers[2].collection"},
		{"bad overlap", func(c *Config) { c.Retrievers[0].Chunking.Overlap = 400 }, "retrievers[0].chunking"},
		{"min score out of range", func(c *Config) { c.Retrievers[2].MinScore = 1.5 }, "retrievers[2].min_score"},
		{"rewrite on simple", func(c *Config) { c.Retrievers[0].RewriteQueries = true }, "retrievers[0]"},
		{"unknown chat retriever", func(c *Config) { c.Chat.Retrievers = []string{"nope"} }, "retrievers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			ApplyDefaults(cfg)
			tt.edit(cfg)
			err := cfg.Validate()
			var cerr *models.ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cerr.Field != tt.field {
				t.Errorf("field = %q, want %q", cerr.Field, tt.field)
			}
		})
	}

	cfg := &Config{}
	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Server.Port = 9100
	path := filepath.Join(t.TempDir(), "saved.yaml")
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9100 || len(loaded.Retrievers) != 3 {
		t.Errorf("unexpected loaded config: port %d, %d retrievers", loaded.Server.Port, len(loaded.Retrievers))
	}
}

func TestLoadEnvAndAPIKey(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("MENTIS_TEST_KEY=sk-from-dotenv\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MENTIS_TEST_KEY", "")
	os.Unsetenv("MENTIS_TEST_KEY")
	if err := LoadEnv(envPath, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatal(err)
	}
	cfg := &Config{LLM: LLMConfig{APIKeyEnv: "MENTIS_TEST_KEY"}}
	key, err := cfg.LLMAPIKey()
	if err != nil || key != "sk-from-dotenv" {
		t.Errorf("LLMAPIKey() = %q, %v", key, err)
	}

	cfg.Embedding.APIKeyEnv = "MENTIS_TEST_UNSET_KEY"
	_, err = cfg.EmbeddingAPIKey()
	var cerr *models.ConfigError
	if !errors.As(err, &cerr) || cerr.Field != "embedding.api_key_env" {
		t.Errorf("expected ConfigError for missing key, got %v", err)
	}
}
