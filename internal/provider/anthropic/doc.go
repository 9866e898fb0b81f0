// Package anthropic adapts the Anthropic Messages API to [tally.ChatProvider].
//
// Structured output is requested by forcing a synthetic tool whose input
// schema is the requested response schema; the tool input is returned as the
// response content.
package anthropic
