// Package app assembles tally's components from configuration. The HTTP
// server, the MCP server and the Lambda entry point share it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spetersoncode/tally"
	"github.com/spetersoncode/tally/client"
	"github.com/spetersoncode/tally/internal/assistant"
	"github.com/spetersoncode/tally/internal/channel"
	"github.com/spetersoncode/tally/internal/config"
	"github.com/spetersoncode/tally/internal/gateway"
	"github.com/spetersoncode/tally/internal/i18n"
	"github.com/spetersoncode/tally/internal/ledger"
	"github.com/spetersoncode/tally/internal/ocr"
	"github.com/spetersoncode/tally/internal/parse"
	"github.com/spetersoncode/tally/internal/preference"
	"github.com/spetersoncode/tally/internal/retry"
	"github.com/spetersoncode/tally/internal/session"
	"github.com/spetersoncode/tally/internal/suspend"
)

// Option configures New.
type Option func(*options)

type options struct {
	llm    tally.ChatProvider
	logger *slog.Logger
}

// WithChatProvider replaces the configured LLM provider.
func WithChatProvider(p tally.ChatProvider) Option {
	return func(o *options) { o.llm = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// App holds the assembled components.
type App struct {
	Router   *gateway.Router
	Parser   *parse.Parser
	Catalog  *i18n.Catalog
	Ledger   *ledger.Client
	Channels *channel.Registry

	suspended *suspend.Store[*gateway.Snapshot]
	prefs     *preference.Cache
	logger    *slog.Logger
}

// New builds the application. Nothing talks to the network until the
// first message.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	catalog, err := i18n.Load()
	if err != nil {
		return nil, fmt.Errorf("app: load catalog: %w", err)
	}
	parser, err := parse.New()
	if err != nil {
		return nil, fmt.Errorf("app: load parser: %w", err)
	}

	ledgerClient := ledger.New(cfg.LedgerURL,
		ledger.WithToken(cfg.LedgerToken),
		ledger.WithHTTPClient(&http.Client{Timeout: cfg.LedgerTimeout}),
		ledger.WithLogger(logger),
	)

	// OCR retries busy errors itself, so its client does not retry.
	llm, ocrLLM := o.llm, o.llm
	if llm == nil {
		base := client.Config{
			Provider: tally.Provider(cfg.Provider),
			Model:    cfg.Model,
			APIKeys: client.APIKeys{
				Anthropic: cfg.AnthropicKey,
				OpenAI:    cfg.OpenAIKey,
				Google:    cfg.GoogleKey,
			},
			Logger: logger,
		}
		llm = client.New(base)
		noRetry := retry.Disabled()
		base.Retry = &noRetry
		ocrLLM = client.New(base)
	}

	var advisor assistant.Assistant
	if cfg.AdvisorEnabled {
		advisor = assistant.NewAdvisor(llm, ledgerClient, catalog, logger)
	}
	coordinator := assistant.NewCoordinator(
		assistant.NewPrimary(llm, ledgerClient, parser, catalog, logger),
		advisor, catalog, logger,
	)

	var wf *gateway.TransactionWorkflow
	if cfg.WorkflowEnabled {
		wf, err = gateway.NewTransactionWorkflow(gateway.WorkflowDeps{
			Ledger:  ledgerClient,
			OCR:     ocr.New(ocrLLM, ocr.WithLogger(logger)),
			Parser:  parser,
			Catalog: catalog,
		})
		if err != nil {
			return nil, fmt.Errorf("app: build workflow: %w", err)
		}
	}

	registry := channel.NewRegistry()
	for name, url := range cfg.ChannelCallbacks {
		registry.Register(name, channel.NewWebhookSender(url,
			channel.WithWebhookToken(cfg.WebhookToken),
			channel.WithWebhookLogger(logger.With("channel", name)),
		))
	}

	suspended := suspend.New[*gateway.Snapshot](
		suspend.WithTTL(cfg.SuspendTTL),
		suspend.WithInterval(cfg.ReapInterval),
		suspend.WithLogger(logger),
	)
	prefs := preference.New(ledgerClient,
		preference.WithTTL(cfg.PreferenceTTL),
		preference.WithInterval(cfg.ReapInterval),
		preference.WithDefaults(cfg.Defaults()),
		preference.WithLogger(logger),
	)

	policy, err := gateway.ParsePolicy(cfg.GroupPolicy)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	router, err := gateway.NewRouter(gateway.Deps{
		Workflow:    wf,
		Dispatcher:  coordinator,
		Lock:        session.New(session.WithQueue(cfg.LockQueue)),
		Suspended:   suspended,
		Preferences: prefs,
		Parser:      parser,
		Catalog:     catalog,
		Sender:      registry,
	},
		gateway.WithPolicy(policy),
		gateway.WithBotName(cfg.BotName),
		gateway.WithStepTimeout(cfg.StepTimeout),
		gateway.WithDispatchTimeout(cfg.DispatchTimeout),
		gateway.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	return &App{
		Router:    router,
		Parser:    parser,
		Catalog:   catalog,
		Ledger:    ledgerClient,
		Channels:  registry,
		suspended: suspended,
		prefs:     prefs,
		logger:    logger,
	}, nil
}

// Start schedules background maintenance. It stops when ctx is done.
func (a *App) Start(ctx context.Context) error {
	if err := a.suspended.Start(ctx); err != nil {
		return err
	}
	if err := a.prefs.Start(ctx); err != nil {
		a.suspended.Stop()
		return err
	}
	return nil
}

// Close waits for background advisory passes and stops maintenance.
func (a *App) Close() {
	a.Router.Wait()
	a.suspended.Stop()
	a.prefs.Stop()
	a.logger.Info("app stopped", "pending_clarifications", a.suspended.Len())
}
