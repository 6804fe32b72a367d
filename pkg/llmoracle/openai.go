package llmoracle

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIOracle implements Oracle using the official OpenAI Go SDK. It
// works against any OpenAI-compatible chat-completions endpoint via
// WithBaseURL, so a self-hosted or alternate-vendor model can stand in
// without changing any calling code.
type OpenAIOracle struct {
	client openai.Client
}

// OpenAIOption configures an OpenAIOracle.
type OpenAIOption func(*openaiConfig)

type openaiConfig struct {
	apiKey  string
	baseURL string
	timeout time.Duration
}

// WithAPIKey sets the API key. If empty, the SDK falls back to its default
// environment variable lookup.
func WithAPIKey(key string) OpenAIOption {
	return func(c *openaiConfig) { c.apiKey = key }
}

// WithBaseURL points the client at a custom OpenAI-compatible endpoint.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openaiConfig) { c.baseURL = url }
}

// WithTimeout sets the per-request timeout. Callers should still pass a
// context with its own deadline; this is a backstop.
func WithTimeout(d time.Duration) OpenAIOption {
	return func(c *openaiConfig) { c.timeout = d }
}

// NewOpenAIOracle creates an OpenAIOracle with the given options.
func NewOpenAIOracle(opts ...OpenAIOption) *OpenAIOracle {
	cfg := openaiConfig{timeout: 10 * time.Second}
	for _, o := range opts {
		o(&cfg)
	}

	var clientOpts []option.RequestOption
	if cfg.apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.apiKey))
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		clientOpts = append(clientOpts, option.WithRequestTimeout(cfg.timeout))
	}

	return &OpenAIOracle{client: openai.NewClient(clientOpts...)}
}

// Complete sends a chat completion request and returns the reply content
// with token usage. The 10s timeout and exponential-backoff retry required
// by SPEC_FULL.md §4.3 are the caller's (pkg/aivalidate, pkg/learning)
// responsibility via ctx — this method makes exactly one attempt.
func (o *OpenAIOracle) Complete(ctx context.Context, model string, messages []Message) (*Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: toOpenAIMessages(messages),
	}

	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	return &Response{
		Content:          completion.Choices[0].Message.Content,
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
	}, nil
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, len(msgs))
	for i, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out[i] = openai.SystemMessage(m.Content)
		case RoleAssistant:
			out[i] = openai.AssistantMessage(m.Content)
		default:
			out[i] = openai.UserMessage(m.Content)
		}
	}
	return out
}
