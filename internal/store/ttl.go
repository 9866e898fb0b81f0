package store

import (
	"hash/fnv"
	"sync"
	"time"
)

// DefaultShards is the shard count used when none is configured.
const DefaultShards = 32

type config struct {
	shards int
	now    func() time.Time
}

// Option configures a TTL store.
type Option func(*config)

// WithShards sets the number of shards. Values below 1 are ignored.
func WithShards(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.shards = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

type entry[V any] struct {
	value   V
	written time.Time
	expires time.Time
}

type shard[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
}

// TTL is a sharded map with per-entry expiry.
type TTL[V any] struct {
	ttl    time.Duration
	now    func() time.Time
	shards []*shard[V]
}

// NewTTL creates a store whose entries live for ttl.
func NewTTL[V any](ttl time.Duration, opts ...Option) *TTL[V] {
	cfg := config{shards: DefaultShards, now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &TTL[V]{ttl: ttl, now: cfg.now, shards: make([]*shard[V], cfg.shards)}
	for i := range s.shards {
		s.shards[i] = &shard[V]{entries: make(map[string]entry[V])}
	}
	return s
}

// TTL returns the configured lifetime.
func (s *TTL[V]) TTL() time.Duration { return s.ttl }

// Put stores v under key, replacing any previous entry and restarting its
// lifetime.
func (s *TTL[V]) Put(key string, v V) {
	now := s.now()
	sh := s.shard(key)
	sh.mu.Lock()
	sh.entries[key] = entry[V]{value: v, written: now, expires: now.Add(s.ttl)}
	sh.mu.Unlock()
}

// Get returns the live entry for key. An expired entry is removed and
// reported as absent.
func (s *TTL[V]) Get(key string) (V, bool) {
	v, _, ok := s.GetWithTime(key)
	return v, ok
}

// GetWithTime is Get that also returns when the entry was written.
func (s *TTL[V]) GetWithTime(key string) (V, time.Time, bool) {
	var zero V
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok {
		return zero, time.Time{}, false
	}
	if !s.now().Before(e.expires) {
		delete(sh.entries, key)
		return zero, time.Time{}, false
	}
	return e.value, e.written, true
}

// Take removes and returns the live entry for key.
func (s *TTL[V]) Take(key string) (V, bool) {
	var zero V
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok {
		return zero, false
	}
	delete(sh.entries, key)
	if !s.now().Before(e.expires) {
		return zero, false
	}
	return e.value, true
}

// Delete removes key. It reports whether an entry, live or expired, existed.
func (s *TTL[V]) Delete(key string) bool {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	_, ok := sh.entries[key]
	delete(sh.entries, key)
	return ok
}

// Reap removes every entry expired at now and returns how many were removed.
// Shards are locked one at a time.
func (s *TTL[V]) Reap(now time.Time) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.entries {
			if !now.Before(e.expires) {
				delete(sh.entries, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of stored entries, including expired ones not yet
// reaped.
func (s *TTL[V]) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

func (s *TTL[V]) shard(key string) *shard[V] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}
