// Package summary groups diary chunks and condenses each group with an LLM.
package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mentis/internal/ids"
	"github.com/hyperjump/mentis/internal/llm"
	"github.com/hyperjump/mentis/internal/models"
	"github.com/hyperjump/mentis/internal/retry"
)

// DefaultPrompt asks for bullet points covering events, emotions, reflections and people.
const DefaultPrompt = "Summarize the following diary entry into concise bullet points, capturing the main " +
	"events, key emotions, significant reflections, and important people mentioned. Diary Entry:"

// Group splits chunks into consecutive groups of size chunks. size <= 0 means one chunk per group.
func Group(chunks []models.Chunk, size int) [][]models.Chunk {
	if size <= 0 {
		size = 1
	}
	var groups [][]models.Chunk
	for i := 0; i < len(chunks); i += size {
		end := i + size
		if end > len(chunks) {
			end = len(chunks)
		}
		groups = append(groups, chunks[i:end])
	}
	return groups
}

// GroupText joins the texts of a group with blank lines.
func GroupText(group []models.Chunk) string {
	texts := make([]string, len(group))
	for i, ch := range group {
		texts[i] = ch.Text
	}
	return strings.Join(texts, "\n\n")
}

// Summarizer produces summaries through an LLM, reusing cached summaries of unchanged groups.
type Summarizer struct {
	client llm.Client
	prompt string
	policy retry.Policy
	cache  *Cache
	logger *zap.Logger
}

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithPrompt overrides DefaultPrompt.
func WithPrompt(p string) Option {
	return func(s *Summarizer) {
		if strings.TrimSpace(p) != "" {
			s.prompt = p
		}
	}
}

// WithRetry sets the retry policy for each LLM call.
func WithRetry(p retry.Policy) Option {
	return func(s *Summarizer) { s.policy = p }
}

// WithCache enables the summary cache.
func WithCache(c *Cache) Option {
	return func(s *Summarizer) { s.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Summarizer) { s.logger = l }
}

// NewSummarizer returns a summarizer backed by client.
func NewSummarizer(client llm.Client, opts ...Option) *Summarizer {
	s := &Summarizer{client: client, prompt: DefaultPrompt, policy: retry.DefaultPolicy(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize returns the summary of text. Failures after retries are ProviderErrors with op "summarize".
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	key := ids.ContentHash(s.prompt, text)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			return cached, nil
		}
	}
	prompt := s.prompt + "\n\n" + text
	policy := s.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		s.logger.Warn("retrying summary", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
	}
	var out string
	err := policy.Do(ctx, func(ctx context.Context) error {
		resp, err := s.client.Complete(ctx, prompt)
		if err != nil {
			return err
		}
		resp = strings.TrimSpace(resp)
		if resp == "" {
			return fmt.Errorf("empty summary")
		}
		out = resp
		return nil
	})
	if err != nil {
		return "", summarizeError(err)
	}
	if s.cache != nil {
		s.cache.Set(key, out)
	}
	return out, nil
}

// SummarizeGroups summarizes each group in order and returns summaries whose source chunk ids
// are the group's chunk ids. It stops at the first failure.
func (s *Summarizer) SummarizeGroups(ctx context.Context, collection string, groups [][]models.Chunk) ([]models.Summary, error) {
	out := make([]models.Summary, 0, len(groups))
	for i, g := range groups {
		if len(g) == 0 {
			continue
		}
		text, err := s.Summarize(ctx, GroupText(g))
		if err != nil {
			return out, fmt.Errorf("group %d of %d: %w", i+1, len(groups), err)
		}
		sources := make([]string, len(g))
		for j, ch := range g {
			sources[j] = ch.ID
		}
		out = append(out, models.Summary{ID: ids.SummaryID(collection, sources), SourceChunkIDs: sources, Text: text})
	}
	s.logger.Debug("summarized groups", zap.String("collection", collection), zap.Int("groups", len(out)))
	return out, nil
}

// SaveCache persists the summary cache, if one is configured.
func (s *Summarizer) SaveCache() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Save()
}

func summarizeError(err error) error {
	var pe *models.ProviderError
	if errors.As(err, &pe) {
		return &models.ProviderError{Provider: pe.Provider, Op: "summarize", Err: pe.Err}
	}
	return &models.ProviderError{Provider: "llm", Op: "summarize", Err: err}
}
