package workflow

import (
	"log/slog"
	"time"
)

// DefaultStepTimeout bounds a single step when no WithStepTimeout is given.
const DefaultStepTimeout = 2 * time.Minute

// Option configures a single Run or Resume call.
type Option func(*runConfig)

type runConfig struct {
	timeout     time.Duration
	stepTimeout time.Duration
	runID       string
	hook        func(StepRecord)
	logger      *slog.Logger
}

func defaultRunConfig() runConfig {
	return runConfig{stepTimeout: DefaultStepTimeout}
}

// WithTimeout bounds the whole call. Zero means no overall timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *runConfig) { c.timeout = d }
}

// WithStepTimeout bounds each step. Zero or negative disables the per-step
// timeout.
func WithStepTimeout(d time.Duration) Option {
	return func(c *runConfig) { c.stepTimeout = d }
}

// WithRunID sets the run id of a new run. Resume always keeps the
// snapshot's run id.
func WithRunID(id string) Option {
	return func(c *runConfig) { c.runID = id }
}

// WithStepHook registers fn to be called after every map and step stage.
// It runs on the run's goroutine and must not block.
func WithStepHook(fn func(StepRecord)) Option {
	return func(c *runConfig) { c.hook = fn }
}

// WithLogger sets the logger handed to steps through RunContext.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) { c.logger = l }
}
