// Package chat answers diary questions by retrieving context and generating a reply with the LLM.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mentis/internal/llm"
	"github.com/hyperjump/mentis/internal/models"
	"github.com/hyperjump/mentis/internal/retriever"
	"github.com/hyperjump/mentis/internal/retry"
)

const (
	generationTask = "task: answer the users message using the provided context:"
	noContext      = "No relevant information found."
)

// Answer is one retriever's reply. Err is set instead of Text when retrieval or generation failed.
type Answer struct {
	Retriever string
	Text      string
	Passages  []*models.Passage
	Err       error
}

// Assistant answers each message once per configured retriever.
type Assistant struct {
	client     llm.Client
	retrievers []retriever.Retriever
	topK       int
	policy     retry.Policy
	logger     *zap.Logger
}

// NewAssistant returns an assistant that consults retrievers in the given order.
// Each generation call runs under policy; the zero Policy makes a single attempt.
func NewAssistant(client llm.Client, retrievers []retriever.Retriever, topK int, policy retry.Policy, logger *zap.Logger) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assistant{client: client, retrievers: retrievers, topK: topK, policy: policy, logger: logger}
}

// Ask answers message with every retriever. A failing retriever does not stop the others.
func (a *Assistant) Ask(ctx context.Context, message string) []Answer {
	answers := make([]Answer, 0, len(a.retrievers))
	for _, r := range a.retrievers {
		ans := Answer{Retriever: r.Name()}
		res, err := r.Query(ctx, message, a.topK)
		if err != nil {
			ans.Err = fmt.Errorf("retrieval failed: %w", err)
			a.logger.Warn("chat retrieval failed", zap.String("retriever", r.Name()), zap.Error(err))
			answers = append(answers, ans)
			continue
		}
		ans.Passages = res.Passages
		text, err := a.generate(ctx, r.Name(), BuildPrompt(message, res.Texts()))
		if err != nil {
			ans.Err = fmt.Errorf("generation failed: %w", err)
			a.logger.Warn("chat generation failed", zap.String("retriever", r.Name()), zap.Error(err))
		}
		ans.Text = strings.TrimSpace(text)
		answers = append(answers, ans)
	}
	return answers
}

func (a *Assistant) generate(ctx context.Context, name, prompt string) (string, error) {
	policy := a.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		a.logger.Warn("retrying chat generation", zap.String("retriever", name),
			zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
	}
	var text string
	err := policy.Do(ctx, func(ctx context.Context) error {
		var err error
		text, err = a.client.Complete(ctx, prompt)
		return err
	})
	return text, err
}

// BuildPrompt frames the user message and the retrieved contexts for generation.
func BuildPrompt(message string, contexts []string) string {
	var ctxText string
	if len(contexts) == 0 {
		ctxText = noContext
	} else {
		lines := make([]string, len(contexts))
		for i, c := range contexts {
			lines[i] = fmt.Sprintf("Passage %d: %s", i+1, c)
		}
		ctxText = strings.Join(lines, "\n")
	}
	var b strings.Builder
	b.WriteString(generationTask)
	b.WriteString("\n\nUser Question:\n<<<")
	b.WriteString(message)
	b.WriteString(">>>\n\nThe following might be relevant information found in the diary entries:\n<<<")
	b.WriteString(ctxText)
	b.WriteString(">>>\n\nnow answer!")
	return b.String()
}
