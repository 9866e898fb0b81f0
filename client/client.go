package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spetersoncode/tally"
	"github.com/spetersoncode/tally/internal/provider/anthropic"
	"github.com/spetersoncode/tally/internal/provider/google"
	"github.com/spetersoncode/tally/internal/provider/openai"
	"github.com/spetersoncode/tally/internal/retry"
)

// APIKeys holds API keys per provider. Only the selected provider's key is
// required.
type APIKeys struct {
	Anthropic string
	OpenAI    string
	Google    string
}

// Config configures a Client.
type Config struct {
	Provider tally.Provider
	Model    string
	APIKeys  APIKeys

	// Retry overrides retry.DefaultConfig.
	Retry *retry.Config

	Logger *slog.Logger
}

// ErrMissingAPIKey is returned when the selected provider has no key.
type ErrMissingAPIKey struct {
	Provider tally.Provider
}

func (e *ErrMissingAPIKey) Error() string {
	return fmt.Sprintf("no API key configured for %s", e.Provider)
}

// Client is a tally.ChatProvider backed by one configured provider.
// The provider is constructed on first use.
type Client struct {
	cfg         Config
	retryConfig retry.Config
	logger      *slog.Logger

	mu       sync.RWMutex
	provider tally.ChatProvider
	initErr  error

	// newProvider is swapped in tests.
	newProvider func(ctx context.Context, cfg Config) (tally.ChatProvider, error)
}

// New creates a Client. No network or SDK setup happens until the first call.
func New(cfg Config) *Client {
	rc := retry.DefaultConfig()
	if cfg.Retry != nil {
		rc = *cfg.Retry
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rc.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Warn("llm call failed, retrying",
			"provider", cfg.Provider, "attempt", attempt, "delay", delay, "error", err)
	}

	return &Client{
		cfg:         cfg,
		retryConfig: rc,
		logger:      logger,
		newProvider: buildProvider,
	}
}

// NewWithProvider wraps an existing provider, skipping lazy construction.
func NewWithProvider(p tally.ChatProvider, rc retry.Config) *Client {
	c := New(Config{Retry: &rc})
	c.provider = p
	return c
}

func buildProvider(ctx context.Context, cfg Config) (tally.ChatProvider, error) {
	switch cfg.Provider {
	case tally.ProviderAnthropic:
		if cfg.APIKeys.Anthropic == "" {
			return nil, &ErrMissingAPIKey{Provider: cfg.Provider}
		}
		return anthropic.New(cfg.APIKeys.Anthropic, anthropic.WithModel(cfg.Model)), nil
	case tally.ProviderOpenAI:
		if cfg.APIKeys.OpenAI == "" {
			return nil, &ErrMissingAPIKey{Provider: cfg.Provider}
		}
		return openai.New(cfg.APIKeys.OpenAI, openai.WithModel(cfg.Model)), nil
	case tally.ProviderGoogle:
		if cfg.APIKeys.Google == "" {
			return nil, &ErrMissingAPIKey{Provider: cfg.Provider}
		}
		p, err := google.New(ctx, cfg.APIKeys.Google, google.WithModel(cfg.Model))
		if err != nil {
			return nil, fmt.Errorf("client: init google: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("client: unsupported provider %q", cfg.Provider)
	}
}

// chatProvider returns the provider, constructing it once. A failed
// construction is remembered and returned on every later call.
func (c *Client) chatProvider(ctx context.Context) (tally.ChatProvider, error) {
	c.mu.RLock()
	if c.provider != nil || c.initErr != nil {
		defer c.mu.RUnlock()
		return c.provider, c.initErr
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.provider != nil || c.initErr != nil {
		return c.provider, c.initErr
	}

	c.provider, c.initErr = c.newProvider(ctx, c.cfg)
	return c.provider, c.initErr
}

// Chat sends a conversation, retrying transient failures.
func (c *Client) Chat(ctx context.Context, messages []tally.Message, opts ...tally.Option) (*tally.Response, error) {
	p, err := c.chatProvider(ctx)
	if err != nil {
		return nil, err
	}
	return retry.Do(ctx, c.retryConfig, func(ctx context.Context) (*tally.Response, error) {
		return p.Chat(ctx, messages, opts...)
	})
}

var _ tally.ChatProvider = (*Client)(nil)
