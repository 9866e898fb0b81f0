// Package openai adapts the OpenAI Chat Completions API to [tally.ChatProvider].
package openai

import (
	"context"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/spetersoncode/tally"
)

// DefaultModel is used when neither the client nor the request names a model.
const DefaultModel = "gpt-4o"

// Client wraps the OpenAI SDK.
type Client struct {
	client     *openai.Client
	model      string
	httpClient *http.Client
}

// ClientOption configures the OpenAI client.
type ClientOption func(*Client)

// WithModel sets the default model for requests.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// New creates a new OpenAI client with the given API key.
func New(apiKey string, opts ...ClientOption) *Client {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	c := &Client{client: &client, model: DefaultModel, httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chat sends a conversation and returns a complete response.
func (c *Client) Chat(ctx context.Context, messages []tally.Message, opts ...tally.Option) (*tally.Response, error) {
	options := tally.ApplyOptions(opts...)
	model := c.model
	if options.Model != "" {
		model = options.Model
	}

	msgs, err := convertMessages(ctx, c.httpClient, messages)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: msgs,
	}
	if options.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(options.MaxTokens))
	}
	if options.Temperature != nil {
		params.Temperature = openai.Float(*options.Temperature)
	}
	if options.ResponseSchema != nil {
		params.ResponseFormat = schemaFormat(options.ResponseSchema)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, tally.NewTransientError("openai: empty response", 0, nil)
	}

	return &tally.Response{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage: tally.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

var _ tally.ChatProvider = (*Client)(nil)
