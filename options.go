package tally

import "encoding/json"

// ResponseSchema asks the provider for JSON output matching Schema.
type ResponseSchema struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Options contains configuration for a chat request.
type Options struct {
	Model          string
	MaxTokens      int
	Temperature    *float64
	ResponseSchema *ResponseSchema
}

// Option is a functional option for configuring chat requests.
type Option func(*Options)

// WithModel sets the model to use for the request.
func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Options) {
		o.Temperature = &t
	}
}

// WithResponseSchema requests structured JSON output.
func WithResponseSchema(s ResponseSchema) Option {
	return func(o *Options) {
		o.ResponseSchema = &s
	}
}

// ApplyOptions folds opts into a fresh Options value.
func ApplyOptions(opts ...Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
