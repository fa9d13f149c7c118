package eval

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/mentis/internal/llm"
	"github.com/hyperjump/mentis/internal/models"
	"github.com/hyperjump/mentis/internal/retry"
)

func TestParseRating(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		r, u    int
		wantErr bool
	}{
		{"plain", `{"relevance": 2, "overallUtility": 1}`, 2, 1, false},
		{"aliased keys", `{"Relevance": 0, "Overallutility": 2}`, 0, 2, false},
		{"fenced", "```json\n{\"relevance\": 1, \"overall_utility\": 1}\n```", 1, 1, false},
		{"float integral", `{"relevance": 2.0, "overallUtility": 0}`, 2, 0, false},
		{"no json", "The passage is relevant.", 0, 0, true},
		{"missing field", `{"relevance": 2}`, 0, 0, true},
		{"out of range", `{"relevance": 3, "overallUtility": 1}`, 0, 0, true},
		{"fractional", `{"relevance": 1.5, "overallUtility": 1}`, 0, 0, true},
		{"string value", `{"relevance": "high", "overallUtility": 1}`, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, u, err := ParseRating(tt.reply)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.r, r)
			assert.Equal(t, tt.u, u)
		})
	}
}

func TestLLMJudge_AveragesContexts(t *testing.T) {
	var prompts []string
	client := llm.Func(func(ctx context.Context, prompt string) (string, error) {
		prompts = append(prompts, prompt)
		if strings.Contains(prompt, "Alice") {
			return `{"relevance": 2, "overallUtility": 2}`, nil
		}
		return `{"relevance": 1, "overallUtility": 0}`, nil
	})
	j := NewLLMJudge(client)
	score, err := j.Judge(context.Background(), "Who did I meet?", []string{"Met Alice.", "Ran 5k."})
	require.NoError(t, err)
	assert.InDelta(t, (1.0+0.25)/2, score, 1e-9)
	require.Len(t, prompts, 2)
	assert.True(t, strings.HasPrefix(prompts[0], DefaultJudgePrompt))
	assert.Contains(t, prompts[0], "<question or user prompt> Who did I meet?\n<context>\nMet Alice.")
}

func TestLLMJudge_NoContexts(t *testing.T) {
	j := NewLLMJudge(llm.Func(func(ctx context.Context, prompt string) (string, error) {
		t.Fatal("judge should not be called")
		return "", nil
	}))
	_, err := j.Judge(context.Background(), "q", nil)
	assert.ErrorIs(t, err, ErrNoContexts)
}

func TestLLMJudge_MalformedIsProviderError(t *testing.T) {
	calls := 0
	j := NewLLMJudge(llm.Func(func(ctx context.Context, prompt string) (string, error) {
		calls++
		return "I'd say quite relevant", nil
	}), WithJudgeRetry(retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}), WithJudgeProvider("openai"))

	_, err := j.Judge(context.Background(), "q", []string{"ctx"})
	var pe *models.ProviderError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, "openai", pe.Provider)
	assert.Equal(t, "judge", pe.Op)
	assert.Equal(t, 2, calls)
}
