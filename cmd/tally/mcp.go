package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/spetersoncode/tally/internal/app"
	"github.com/spetersoncode/tally/internal/config"
	"github.com/spetersoncode/tally/internal/mcpserver"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run an MCP server over stdio",
		Long: `Expose record_expense and parse_expense to MCP clients over stdin and
stdout. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMCP(cmd.Context())
		},
	}
}

func runMCP(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	a, err := app.New(cfg, app.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Close()

	s := mcpserver.NewServer(a.Router, a.Parser,
		mcpserver.WithVersion(version),
		mcpserver.WithCurrency(cfg.DefaultCurrency),
	)
	return mcpserver.ServeStdio(s)
}
