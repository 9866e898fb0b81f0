// Package preference caches per-user settings fetched from the ledger.
package preference

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/spetersoncode/tally/internal/domain"
	"github.com/spetersoncode/tally/internal/store"
)

const (
	// DefaultTTL is how long fetched preferences are trusted.
	DefaultTTL = time.Hour
	// DefaultInterval is how often expired entries are removed.
	DefaultInterval = 10 * time.Minute
)

// Defaults apply when the ledger has no value.
var Defaults = domain.Preferences{Language: "en", Currency: "THB", Timezone: "Asia/Bangkok"}

// Fetcher loads preferences from the ledger.
type Fetcher interface {
	GetPreferences(ctx context.Context, lctx domain.LedgerContext) (domain.Preferences, error)
}

// Cache is a fetch-through TTL cache keyed by channel and user.
type Cache struct {
	fetcher  Fetcher
	entries  *store.TTL[domain.Preferences]
	group    singleflight.Group
	defaults domain.Preferences
	now      func() time.Time
	reaper   *store.Reaper
	logger   *slog.Logger
}

// Option configures a Cache.
type Option func(*cacheOptions)

type cacheOptions struct {
	ttl      time.Duration
	interval time.Duration
	defaults domain.Preferences
	now      func() time.Time
	logger   *slog.Logger
}

// WithTTL sets the entry lifetime.
func WithTTL(d time.Duration) Option {
	return func(o *cacheOptions) {
		if d > 0 {
			o.ttl = d
		}
	}
}

// WithInterval sets how often expired entries are removed once started.
func WithInterval(d time.Duration) Option {
	return func(o *cacheOptions) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithDefaults overrides the fallback preferences.
func WithDefaults(p domain.Preferences) Option {
	return func(o *cacheOptions) { o.defaults = p.WithDefaults(Defaults) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *cacheOptions) { o.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *cacheOptions) { o.logger = l }
}

// New creates a Cache backed by f.
func New(f Fetcher, opts ...Option) *Cache {
	o := cacheOptions{ttl: DefaultTTL, interval: DefaultInterval, defaults: Defaults, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	c := &Cache{
		fetcher:  f,
		entries:  store.NewTTL[domain.Preferences](o.ttl, store.WithClock(o.now)),
		defaults: o.defaults,
		now:      o.now,
		logger:   o.logger,
	}
	c.reaper = store.NewReaper("preferences", o.interval, c.Reap, o.logger)
	return c
}

// Key returns the cache key for a user on a channel.
func Key(channel, userID string) string {
	return channel + ":" + userID
}

// Get returns the user's preferences. Concurrent misses for one key share a
// single fetch. A failed fetch yields the defaults and is not cached, so
// the next message tries again.
func (c *Cache) Get(ctx context.Context, lctx domain.LedgerContext) domain.Preferences {
	key := Key(lctx.Channel, lctx.SenderID)
	if p, ok := c.entries.Get(key); ok {
		return p
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		p, err := c.fetcher.GetPreferences(ctx, lctx)
		if err != nil {
			return nil, err
		}
		p = p.WithDefaults(c.defaults)
		c.entries.Put(key, p)
		return p, nil
	})
	if err != nil {
		c.logger.Warn("preference fetch failed, using defaults", "key", key, "error", err)
		return c.defaults
	}
	return v.(domain.Preferences)
}

// Invalidate drops the cached entry for a user.
func (c *Cache) Invalidate(channel, userID string) {
	c.entries.Delete(Key(channel, userID))
}

// Reap removes expired entries and returns how many were dropped.
func (c *Cache) Reap() int {
	return c.entries.Reap(c.now())
}

// Len returns the number of cached entries, expired or not.
func (c *Cache) Len() int { return c.entries.Len() }

// Start schedules removal of expired entries. It stops when ctx is done or
// Stop is called.
func (c *Cache) Start(ctx context.Context) error {
	return c.reaper.Start(ctx)
}

// Stop halts the reaper.
func (c *Cache) Stop() {
	c.reaper.Stop()
}

// Defaults returns the fallback preferences.
func (c *Cache) Defaults() domain.Preferences { return c.defaults }
