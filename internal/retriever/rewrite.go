package retriever

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mentis/internal/llm"
	"github.com/hyperjump/mentis/internal/retry"
)

// DefaultRewritePrompt asks for reformulations of <USER_MESSAGE>, one per line.
const DefaultRewritePrompt = `For the user message, write up to three short search queries that would find diary passages
giving helpful context for a response. Each query should be clear and retrieval-friendly: name the
people, places, activities, feelings or plans involved.
Return one query per line and nothing else.

User message: "<USER_MESSAGE>"
Queries:`

const maxRewrites = 3

// QueryRewriter turns a user message into retrieval-friendly queries.
type QueryRewriter interface {
	Rewrite(ctx context.Context, message string) ([]string, error)
}

// LLMRewriter asks an LLM for reformulations of the user message.
type LLMRewriter struct {
	client llm.Client
	prompt string
	policy retry.Policy
	logger *zap.Logger
}

// NewLLMRewriter returns a rewriter backed by client. An empty prompt uses DefaultRewritePrompt.
func NewLLMRewriter(client llm.Client, prompt string, policy retry.Policy, logger *zap.Logger) *LLMRewriter {
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultRewritePrompt
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMRewriter{client: client, prompt: prompt, policy: policy, logger: logger}
}

// Rewrite returns at most three queries parsed from the LLM reply.
func (w *LLMRewriter) Rewrite(ctx context.Context, message string) ([]string, error) {
	prompt := strings.ReplaceAll(w.prompt, "<USER_MESSAGE>", message)
	policy := w.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		w.logger.Warn("retrying query rewrite", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
	}
	var reply string
	err := policy.Do(ctx, func(ctx context.Context) error {
		r, err := w.client.Complete(ctx, prompt)
		if err != nil {
			return err
		}
		reply = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ParseRewrites(reply, maxRewrites), nil
}

var listMarker = regexp.MustCompile(`^(?:[-*•]|\d+[.)])\s*`)

// ParseRewrites splits a reply into queries: one per non-empty line, list markers and quotes
// stripped, duplicates dropped, at most limit kept.
func ParseRewrites(reply string, limit int) []string {
	var out []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(reply, "\n") {
		q := strings.TrimSpace(line)
		q = listMarker.ReplaceAllString(q, "")
		q = strings.TrimSpace(strings.Trim(q, `"'`))
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
