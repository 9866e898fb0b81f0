package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// ErrStarted is returned by Start when the reaper is already running.
var ErrStarted = errors.New("store: reaper already started")

// Reaper runs a reap function on a fixed schedule.
type Reaper struct {
	name     string
	interval time.Duration
	reap     func() int
	logger   *slog.Logger

	mu   sync.Mutex
	cron *rcron.Cron
}

// NewReaper creates a Reaper that calls reap every interval once started.
// name labels its log lines.
func NewReaper(name string, interval time.Duration, reap func() int, logger *slog.Logger) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{name: name, interval: interval, reap: reap, logger: logger}
}

// Start schedules the reaper. It stops when ctx is done or Stop is called.
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron != nil {
		return ErrStarted
	}

	log := cronLogger{r.logger}
	c := rcron.New(rcron.WithChain(rcron.Recover(log), rcron.SkipIfStillRunning(log)), rcron.WithLogger(log))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", r.interval), r.run); err != nil {
		return fmt.Errorf("store: schedule %s reaper: %w", r.name, err)
	}
	c.Start()
	r.cron = c

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

// Stop halts the reaper and waits for a running reap to finish.
func (r *Reaper) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

func (r *Reaper) run() {
	if n := r.reap(); n > 0 {
		r.logger.Debug("reaped expired entries", "store", r.name, "count", n)
	}
}

// cronLogger routes cron's logging into slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
