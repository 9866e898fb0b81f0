package anthropic

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/spetersoncode/tally"
)

// DefaultModel is used when neither the client nor the request names a model.
const DefaultModel = "claude-sonnet-4-5"

const defaultMaxTokens = 2048

// Client wraps the Anthropic SDK.
type Client struct {
	client *anthropic.Client
	model  string
}

// ClientOption configures the Anthropic client.
type ClientOption func(*Client)

// WithModel sets the default model for requests.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// New creates a new Anthropic client with the given API key.
func New(apiKey string, opts ...ClientOption) *Client {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	c := &Client{client: &client, model: DefaultModel}
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

	maxTokens := int64(defaultMaxTokens)
	if options.MaxTokens > 0 {
		maxTokens = int64(options.MaxTokens)
	}

	msgs, system := convertMessages(messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if len(system) > 0 {
		params.System = system
	}
	if options.Temperature != nil {
		params.Temperature = anthropic.Float(*options.Temperature)
	}

	structured := options.ResponseSchema != nil
	if structured {
		tool, choice := schemaTool(options.ResponseSchema)
		params.Tools = []anthropic.ToolUnionParam{tool}
		params.ToolChoice = choice
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapError(err)
	}

	content := ""
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			content += block.Text
		case "tool_use":
			if structured && block.Name == schemaToolName {
				content = string(block.Input)
			}
		}
	}

	return &tally.Response{
		Content:      content,
		FinishReason: string(resp.StopReason),
		Usage: tally.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// wrapError categorizes SDK errors by status code.
func wrapError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	var retryAfter time.Duration
	if apiErr.Response != nil {
		if secs, convErr := strconv.Atoi(apiErr.Response.Header.Get("Retry-After")); convErr == nil {
			retryAfter = time.Duration(secs) * time.Second
		}
	}
	return tally.NewStatusError("anthropic: request failed", apiErr.StatusCode, retryAfter, err)
}

var _ tally.ChatProvider = (*Client)(nil)
