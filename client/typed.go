package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spetersoncode/tally"
)

// ChatJSON requests structured output matching schema and decodes it into T.
// Providers occasionally wrap JSON in a markdown fence; the fence is stripped
// before decoding.
func ChatJSON[T any](ctx context.Context, p tally.ChatProvider, msgs []tally.Message, schema tally.ResponseSchema, opts ...tally.Option) (T, error) {
	var zero T

	opts = append(opts, tally.WithResponseSchema(schema))
	resp, err := p.Chat(ctx, msgs, opts...)
	if err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal([]byte(stripFence(resp.Content)), &out); err != nil {
		return zero, fmt.Errorf("client: decode %s response: %w", schema.Name, err)
	}
	return out, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
