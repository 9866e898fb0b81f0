// Command tally-lambda serves platform webhooks from AWS Lambda behind an
// API Gateway proxy integration. Configuration matches tally serve; set
// TALLY_SSM_PREFIX to read secrets from SSM Parameter Store.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/spetersoncode/tally/internal/app"
	"github.com/spetersoncode/tally/internal/config"
	"github.com/spetersoncode/tally/internal/logging"
	"github.com/spetersoncode/tally/internal/serverless"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	logger := logging.Setup(logging.Config{Level: cfg.LogLevel, Format: "json", Output: os.Stderr})

	// Pending clarifications live only as long as this execution
	// environment stays warm.
	a, err := app.New(cfg, app.WithLogger(logger))
	if err != nil {
		logger.Error("failed to build app", "err", err)
		os.Exit(1)
	}

	h, err := serverless.NewHandler(a.Router,
		serverless.WithToken(cfg.WebhookToken),
		serverless.WithForward(a.Channels),
		serverless.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
