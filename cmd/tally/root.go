package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/spetersoncode/tally/internal/logging"
)

type rootOptions struct {
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "tally",
		Short:         "Chat-first expense tracking",
		Long:          "tally records expenses from chat messages and receipt photos, splits them\nacross group members and answers balance questions.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logging.Setup(logging.Config{
				Level:  flagOrEnv(cmd, "log-level", opts.logLevel, "TALLY_LOG_LEVEL"),
				Format: flagOrEnv(cmd, "log-format", opts.logFormat, "TALLY_LOG_FORMAT"),
				Output: os.Stderr,
			})
		},
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "auto", "log format (auto, text, json)")

	cmd.AddCommand(newServeCmd(), newMCPCmd(), newParseCmd())
	return cmd
}

// flagOrEnv prefers an explicitly set flag, then the environment, then the
// flag default.
func flagOrEnv(cmd *cobra.Command, flag, value, env string) string {
	if cmd.Flags().Changed(flag) {
		return value
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return value
}
