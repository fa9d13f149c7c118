package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hyperjump/mentis/internal/models"
	"github.com/hyperjump/mentis/internal/retry"
)

// DefaultOpenAIModel is the chat model used when none is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIOptions configures an OpenAI chat completion client.
type OpenAIOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float64
	Limiter     *retry.Limiter
}

// OpenAI completes prompts with the chat completions API. It does not retry; callers wrap it
// in their retry policy.
type OpenAI struct {
	client      openai.Client
	model       string
	temperature *float64
	limiter     *retry.Limiter
}

// NewOpenAI builds a client. The API key is required.
func NewOpenAI(opts OpenAIOptions) (*OpenAI, error) {
	if opts.APIKey == "" {
		return nil, &models.ConfigError{Field: "OPENAI_API_KEY", Err: fmt.Errorf("required for the openai llm provider")}
	}
	if opts.Model == "" {
		opts.Model = DefaultOpenAIModel
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey), option.WithMaxRetries(0)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &OpenAI{
		client:      openai.NewClient(reqOpts...),
		model:       opts.Model,
		temperature: opts.Temperature,
		limiter:     opts.Limiter,
	}, nil
}

// Complete sends prompt as a single user message and returns the first choice's content.
func (c *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", c.fail(err)
	}
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Model:    openai.ChatModel(c.model),
	}
	if c.temperature != nil {
		params.Temperature = openai.Float(*c.temperature)
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", c.fail(err)
	}
	if len(resp.Choices) == 0 {
		return "", c.fail(fmt.Errorf("response has no choices"))
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", c.fail(fmt.Errorf("empty completion"))
	}
	return content, nil
}

// Model returns the configured model name.
func (c *OpenAI) Model() string {
	return c.model
}

func (c *OpenAI) fail(err error) error {
	return &models.ProviderError{Provider: "openai", Op: "complete", Err: err}
}
