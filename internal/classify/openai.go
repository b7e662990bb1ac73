package classify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is the chat model used when none is configured
const DefaultModel = "gpt-4"

// OpenAIConfig configures an OpenAICompleter
type OpenAIConfig struct {
	APIKey string

	// BaseURL overrides the API endpoint, e.g. for an OpenAI compatible proxy
	BaseURL string

	// Model defaults to DefaultModel
	Model string

	// HTTPClient is optional
	HTTPClient *http.Client
}

// OpenAICompleter sends single-turn chat completions with temperature 0
type OpenAICompleter struct {
	client openai.Client
	model  string
}

// NewOpenAICompleter creates a completer. An API key is required.
func NewOpenAICompleter(cfg OpenAIConfig) (*OpenAICompleter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// retries are not worth it: a failed call falls back to Uncategorized
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAICompleter{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}, nil
}

// Model returns the configured chat model
func (c *OpenAICompleter) Model() string {
	return c.model
}

// Complete returns the content of the first choice
func (c *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model:       c.model,
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("OpenAI returned no completion choices")
	}

	return completion.Choices[0].Message.Content, nil
}
