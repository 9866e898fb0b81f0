package tally

import "context"

// Provider identifies an LLM provider.
type Provider string

// String returns the provider identifier.
func (p Provider) String() string { return string(p) }

// Supported providers.
const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGoogle    Provider = "google"
)

// ChatProvider sends a conversation and returns the complete response.
type ChatProvider interface {
	Chat(ctx context.Context, messages []Message, opts ...Option) (*Response, error)
}
