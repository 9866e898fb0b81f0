package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spetersoncode/tally/internal/api"
	"github.com/spetersoncode/tally/internal/app"
	"github.com/spetersoncode/tally/internal/config"
)

func newServeCmd() *cobra.Command {
	var corsOrigins []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long: `Serve platform webhooks on POST /webhook/{channel} and the AG-UI web chat
on POST /api/chat. Replies to webhook messages are posted to the callback
configured for the channel in TALLY_CHANNEL_CALLBACKS.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), corsOrigins)
		},
	}
	cmd.Flags().StringSliceVar(&corsOrigins, "cors-origin", []string{"*"}, "allowed CORS origins for the web chat")
	return cmd
}

func runServe(ctx context.Context, corsOrigins []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	logger := slog.Default()

	a, err := app.New(cfg, app.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Close()

	srvCfg := api.DefaultConfig()
	srvCfg.Addr = ":" + cfg.Port
	srvCfg.WebhookToken = cfg.WebhookToken
	srvCfg.CORSOrigins = corsOrigins
	for name := range cfg.ChannelCallbacks {
		srvCfg.Channels = append(srvCfg.Channels, name)
	}
	srv := api.New(srvCfg, a.Router, logger)

	logger.Info("tally starting",
		"version", version,
		"provider", cfg.Provider,
		"workflow", cfg.WorkflowEnabled,
		"advisor", cfg.AdvisorEnabled,
		"channels", srvCfg.Channels,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	return srv.Shutdown(context.WithoutCancel(ctx))
}
