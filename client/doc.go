// Package client selects and lazily constructs the configured LLM provider
// and retries transient failures.
//
//	c := client.New(client.Config{
//	    Provider: tally.ProviderAnthropic,
//	    APIKeys:  client.APIKeys{Anthropic: os.Getenv("ANTHROPIC_API_KEY")},
//	})
//	resp, err := c.Chat(ctx, []tally.Message{tally.UserMessage("hello")})
//
// [ChatJSON] decodes a structured response straight into a Go value.
package client
