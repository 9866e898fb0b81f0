// Package config loads tally's configuration from the environment.
package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/spetersoncode/tally/internal/domain"
)

// Config holds the service configuration loaded from environment variables.
type Config struct {
	// Server
	Port      string
	LogLevel  string // debug, info, warn, error
	LogFormat string // auto, text, json

	// Provider selection
	Provider string
	Model    string

	// API Keys
	AnthropicKey string
	OpenAIKey    string
	GoogleKey    string

	// Ledger
	LedgerURL     string
	LedgerToken   string
	LedgerTimeout time.Duration

	// Defaults for users without preferences
	DefaultLanguage string
	DefaultCurrency string
	DefaultTimezone string

	// Engine
	SuspendTTL      time.Duration
	ReapInterval    time.Duration
	PreferenceTTL   time.Duration
	LockQueue       int
	StepTimeout     time.Duration
	DispatchTimeout time.Duration
	WorkflowEnabled bool
	AdvisorEnabled  bool

	// Groups
	GroupPolicy string // mention, always
	BotName     string

	// Channels
	WebhookToken     string
	ChannelCallbacks map[string]string

	// SSMPrefix enables loading empty secrets from SSM Parameter Store.
	SSMPrefix string
}

// Load reads a .env file if present, then the environment. When
// TALLY_SSM_PREFIX is set, empty secrets are filled from SSM before the
// configuration is validated.
func Load(ctx context.Context) (*Config, error) {
	godotenv.Load() // Load .env file if present

	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}

	if cfg.SSMPrefix != "" {
		api, err := newSSMClient(ctx)
		if err != nil {
			return nil, err
		}
		if err := LoadSecrets(ctx, cfg, api); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv reads the configuration from environment variables without
// validating it.
func FromEnv() (*Config, error) {
	callbacks, err := parseCallbacks(os.Getenv("TALLY_CHANNEL_CALLBACKS"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:      getEnvOrDefault("TALLY_PORT", "8080"),
		LogLevel:  getEnvOrDefault("TALLY_LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("TALLY_LOG_FORMAT", "auto"),

		Provider:     os.Getenv("TALLY_PROVIDER"),
		Model:        os.Getenv("TALLY_MODEL"),
		AnthropicKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		GoogleKey:    os.Getenv("GOOGLE_API_KEY"),

		LedgerURL:     os.Getenv("TALLY_LEDGER_URL"),
		LedgerToken:   os.Getenv("TALLY_LEDGER_TOKEN"),
		LedgerTimeout: getEnvDurationOrDefault("TALLY_LEDGER_TIMEOUT", 10*time.Second),

		DefaultLanguage: getEnvOrDefault("TALLY_DEFAULT_LANGUAGE", "en"),
		DefaultCurrency: strings.ToUpper(getEnvOrDefault("TALLY_DEFAULT_CURRENCY", "THB")),
		DefaultTimezone: getEnvOrDefault("TALLY_DEFAULT_TIMEZONE", "Asia/Bangkok"),

		SuspendTTL:      getEnvDurationOrDefault("TALLY_SUSPEND_TTL", 5*time.Minute),
		ReapInterval:    getEnvDurationOrDefault("TALLY_REAP_INTERVAL", time.Minute),
		PreferenceTTL:   getEnvDurationOrDefault("TALLY_PREFERENCE_TTL", time.Hour),
		LockQueue:       getEnvIntOrDefault("TALLY_LOCK_QUEUE", 8),
		StepTimeout:     getEnvDurationOrDefault("TALLY_STEP_TIMEOUT", 30*time.Second),
		DispatchTimeout: getEnvDurationOrDefault("TALLY_DISPATCH_TIMEOUT", time.Minute),
		WorkflowEnabled: getEnvBoolOrDefault("TALLY_WORKFLOW_ENABLED", true),
		AdvisorEnabled:  getEnvBoolOrDefault("TALLY_ADVISOR_ENABLED", true),

		GroupPolicy: getEnvOrDefault("TALLY_GROUP_POLICY", "mention"),
		BotName:     strings.TrimSpace(getEnvOrDefault("TALLY_BOT_NAME", "tally")),

		WebhookToken:     os.Getenv("TALLY_WEBHOOK_TOKEN"),
		ChannelCallbacks: callbacks,

		SSMPrefix: strings.TrimSuffix(os.Getenv("TALLY_SSM_PREFIX"), "/"),
	}, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.LedgerURL == "" {
		return fmt.Errorf("TALLY_LEDGER_URL is required")
	}
	if _, err := url.ParseRequestURI(c.LedgerURL); err != nil {
		return fmt.Errorf("TALLY_LEDGER_URL is invalid: %w", err)
	}

	if c.Provider == "" {
		return fmt.Errorf("TALLY_PROVIDER is required (anthropic, openai, or google)")
	}
	switch c.Provider {
	case "anthropic":
		if c.AnthropicKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for anthropic provider")
		}
	case "openai":
		if c.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for openai provider")
		}
	case "google":
		if c.GoogleKey == "" {
			return fmt.Errorf("GOOGLE_API_KEY is required for google provider")
		}
	default:
		return fmt.Errorf("unknown provider: %s (must be anthropic, openai, or google)", c.Provider)
	}

	switch c.GroupPolicy {
	case "mention", "always":
	default:
		return fmt.Errorf("unknown group policy: %s (must be mention or always)", c.GroupPolicy)
	}
	if c.GroupPolicy == "mention" && strings.TrimSpace(c.BotName) == "" {
		return fmt.Errorf("TALLY_BOT_NAME is required for mention group policy")
	}

	if c.SuspendTTL <= 0 || c.ReapInterval <= 0 || c.PreferenceTTL <= 0 {
		return fmt.Errorf("TALLY_SUSPEND_TTL, TALLY_REAP_INTERVAL and TALLY_PREFERENCE_TTL must be positive")
	}
	if c.StepTimeout <= 0 || c.DispatchTimeout <= 0 {
		return fmt.Errorf("TALLY_STEP_TIMEOUT and TALLY_DISPATCH_TIMEOUT must be positive")
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("TALLY_DEFAULT_TIMEZONE is invalid: %w", err)
	}

	return nil
}

// Defaults returns the preferences used for users who have none.
func (c *Config) Defaults() domain.Preferences {
	return domain.Preferences{
		Language: c.DefaultLanguage,
		Currency: c.DefaultCurrency,
		Timezone: c.DefaultTimezone,
	}
}

// APIKey returns the key of the selected provider.
func (c *Config) APIKey() string {
	switch c.Provider {
	case "anthropic":
		return c.AnthropicKey
	case "openai":
		return c.OpenAIKey
	case "google":
		return c.GoogleKey
	}
	return ""
}

// parseCallbacks parses "name=url,name=url".
func parseCallbacks(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, target, ok := strings.Cut(pair, "=")
		name, target = strings.TrimSpace(name), strings.TrimSpace(target)
		if !ok || name == "" || target == "" {
			return nil, fmt.Errorf("TALLY_CHANNEL_CALLBACKS: invalid entry %q (want name=url)", pair)
		}
		if _, err := url.ParseRequestURI(target); err != nil {
			return nil, fmt.Errorf("TALLY_CHANNEL_CALLBACKS: invalid url for %s: %w", name, err)
		}
		out[name] = target
	}
	return out, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
