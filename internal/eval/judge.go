// Package eval scores retrievers by asking an LLM judge how relevant their contexts are.
package eval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mentis/internal/llm"
	"github.com/hyperjump/mentis/internal/models"
	"github.com/hyperjump/mentis/internal/retry"
	"github.com/hyperjump/mentis/pkg/utils"
)

// DefaultJudgePrompt is the rubric sent ahead of every (query, context) pair.
const DefaultJudgePrompt = `SYSTEM:
You are a strict quality evaluator for a Retrieval-Augmented-Generation (RAG) system.
The passage you will judge may be in English **or German**.
Score it according to the rubric below and return ONLY a JSON object of the form
{"relevance": <0-2>, "overallUtility": <0-2>}.

CRITERIA:
1. Relevance (0-2)
   - 0 = no relation to the question
   - 1 = some topical terms, little substance
   - 2 = concrete facts/arguments that help answer
2. Overall Utility (0-2)
   - 0 = no added value for answering
   - 1 = useful extra info but not essential
   - 2 = key information without which the answer would be incomplete`

// ErrNoContexts is returned when there is nothing to judge.
var ErrNoContexts = errors.New("no contexts retrieved")

// Judge scores how relevant contexts are to query, in [0,1].
type Judge interface {
	Judge(ctx context.Context, query string, contexts []string) (float64, error)
}

// JudgeFunc adapts a function to Judge.
type JudgeFunc func(ctx context.Context, query string, contexts []string) (float64, error)

// Judge calls f.
func (f JudgeFunc) Judge(ctx context.Context, query string, contexts []string) (float64, error) {
	return f(ctx, query, contexts)
}

// LLMJudge rates each context with the rubric and averages the per-context scores.
// A context scores (relevance + overallUtility) / 4.
type LLMJudge struct {
	client   llm.Client
	prompt   string
	policy   retry.Policy
	provider string
	logger   *zap.Logger
}

// JudgeOption configures an LLMJudge.
type JudgeOption func(*LLMJudge)

// WithJudgePrompt overrides DefaultJudgePrompt.
func WithJudgePrompt(p string) JudgeOption {
	return func(j *LLMJudge) {
		if strings.TrimSpace(p) != "" {
			j.prompt = p
		}
	}
}

// WithJudgeRetry sets the retry policy for each judge call.
func WithJudgeRetry(p retry.Policy) JudgeOption {
	return func(j *LLMJudge) { j.policy = p }
}

// WithJudgeLogger sets the logger.
func WithJudgeLogger(l *zap.Logger) JudgeOption {
	return func(j *LLMJudge) { j.logger = l }
}

// WithJudgeProvider names the provider in ProviderErrors.
func WithJudgeProvider(name string) JudgeOption {
	return func(j *LLMJudge) { j.provider = name }
}

// NewLLMJudge returns a judge backed by client.
func NewLLMJudge(client llm.Client, opts ...JudgeOption) *LLMJudge {
	j := &LLMJudge{client: client, prompt: DefaultJudgePrompt, policy: retry.DefaultPolicy(), provider: "llm", logger: zap.NewNop()}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Judge returns the mean context score, or ErrNoContexts for an empty slice. If any context
// cannot be judged the whole judgment fails with a ProviderError.
func (j *LLMJudge) Judge(ctx context.Context, query string, contexts []string) (float64, error) {
	if len(contexts) == 0 {
		return 0, ErrNoContexts
	}
	var total float64
	for i, c := range contexts {
		s, err := j.judgeContext(ctx, query, c)
		if err != nil {
			return 0, &models.ProviderError{Provider: j.provider, Op: "judge", Err: fmt.Errorf("context %d: %w", i+1, err)}
		}
		total += s
	}
	return total / float64(len(contexts)), nil
}

func (j *LLMJudge) judgeContext(ctx context.Context, query, passage string) (float64, error) {
	prompt := j.prompt + "\n\n<question or user prompt> " + query + "\n<context>\n" + passage
	policy := j.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		j.logger.Warn("retrying judge call", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
	}
	var score float64
	err := policy.Do(ctx, func(ctx context.Context) error {
		resp, err := j.client.Complete(ctx, prompt)
		if err != nil {
			return err
		}
		r, u, err := ParseRating(resp)
		if err != nil {
			return err
		}
		score = float64(r+u) / 4
		return nil
	})
	return score, err
}

// ParseRating extracts relevance and overall utility from a judge reply. The reply may wrap
// the JSON object in prose or a code fence; key case is ignored.
func ParseRating(reply string) (relevance, utility int, err error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return 0, 0, fmt.Errorf("no JSON object in judge reply %q", utils.Truncate(reply, 80))
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return 0, 0, fmt.Errorf("malformed judge reply: %w", err)
	}
	fields := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		key := strings.ToLower(strings.NewReplacer("_", "", " ", "").Replace(k))
		fields[key] = v
	}
	if relevance, err = rubricValue(fields, "relevance"); err != nil {
		return 0, 0, err
	}
	if utility, err = rubricValue(fields, "overallutility"); err != nil {
		return 0, 0, err
	}
	return relevance, utility, nil
}

func rubricValue(fields map[string]json.RawMessage, key string) (int, error) {
	v, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("judge reply missing %s", key)
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return 0, fmt.Errorf("judge %s is not a number: %s", key, v)
	}
	if f != float64(int(f)) || f < 0 || f > 2 {
		return 0, fmt.Errorf("judge %s out of range: %v", key, f)
	}
	return int(f), nil
}
