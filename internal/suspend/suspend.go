// Package suspend keeps the continuations of workflow runs that paused to
// ask the user a question.
//
// At most one continuation exists per session. Entries expire after a fixed
// TTL and are removed by a reaper scheduled with cron.
package suspend

import (
	"context"
	"log/slog"
	"time"

	"github.com/spetersoncode/tally/internal/domain"
	"github.com/spetersoncode/tally/internal/store"
)

const (
	// DefaultTTL is how long a continuation stays resumable.
	DefaultTTL = 5 * time.Minute
	// DefaultInterval is how often the reaper runs.
	DefaultInterval = 60 * time.Second
)

// ErrStarted is returned by Start when the reaper is already running.
var ErrStarted = store.ErrStarted

// Continuation is a paused run waiting for the user's reply.
type Continuation[T any] struct {
	RunID     string
	StepID    string
	Prompt    string
	Missing   []string
	Snapshot  T
	CreatedAt time.Time
}

// Option configures a Store.
type Option func(*options)

type options struct {
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// WithTTL sets how long continuations live.
func WithTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.ttl = d
		}
	}
}

// WithInterval sets the reaper interval.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Store maps session keys to continuations.
type Store[T any] struct {
	entries *store.TTL[Continuation[T]]
	reaper  *store.Reaper
	now     func() time.Time
}

// New creates a Store. The reaper does not run until Start.
func New[T any](opts ...Option) *Store[T] {
	o := options{ttl: DefaultTTL, interval: DefaultInterval, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	s := &Store[T]{
		entries: store.NewTTL[Continuation[T]](o.ttl, store.WithClock(o.now)),
		now:     o.now,
	}
	s.reaper = store.NewReaper("suspended runs", o.interval, s.Reap, o.logger)
	return s
}

// Put saves c for key, replacing any earlier continuation.
func (s *Store[T]) Put(key domain.SessionKey, c Continuation[T]) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.entries.Put(string(key), c)
}

// Get returns the live continuation for key.
func (s *Store[T]) Get(key domain.SessionKey) (Continuation[T], bool) {
	return s.entries.Get(string(key))
}

// Take removes and returns the live continuation for key.
func (s *Store[T]) Take(key domain.SessionKey) (Continuation[T], bool) {
	return s.entries.Take(string(key))
}

// Remove deletes the continuation for key.
func (s *Store[T]) Remove(key domain.SessionKey) {
	s.entries.Delete(string(key))
}

// Reap removes expired continuations and returns how many were dropped.
func (s *Store[T]) Reap() int {
	return s.entries.Reap(s.now())
}

// Len returns the number of stored continuations.
func (s *Store[T]) Len() int { return s.entries.Len() }

// Start schedules the reaper. It stops when ctx is done or Stop is called.
func (s *Store[T]) Start(ctx context.Context) error {
	return s.reaper.Start(ctx)
}

// Stop halts the reaper and waits for a running reap to finish.
func (s *Store[T]) Stop() {
	s.reaper.Stop()
}
