// Command tally is a chat-first expense tracker.
//
// Usage:
//
//	tally serve              # HTTP server: platform webhooks and AG-UI web chat
//	tally mcp                # MCP server over stdio
//	tally parse "coffee 65"  # print how a message is parsed
//
// Configuration is read from the environment and an optional .env file.
// See internal/config for the variables.
package main

import (
	"fmt"
	"os"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
