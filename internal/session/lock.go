// Package session serializes message processing per conversation.
package session

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/spetersoncode/tally/internal/domain"
)

// DefaultQueue is the number of waiters allowed behind a holder.
const DefaultQueue = 8

// ErrBusy is returned by Acquire when the session's wait queue is full.
var ErrBusy = errors.New("session: too many pending messages")

type entry struct {
	waiters []chan struct{}
}

// Lock is a keyed mutex. Holders of different keys never contend; holders
// of one key are served in arrival order. A key's table entry exists only
// while someone holds it.
type Lock struct {
	mu       sync.Mutex
	entries  map[domain.SessionKey]*entry
	maxQueue int
}

// Option configures a Lock.
type Option func(*Lock)

// WithQueue bounds the waiters per key. Negative means unbounded.
func WithQueue(n int) Option {
	return func(l *Lock) { l.maxQueue = n }
}

// New creates a Lock.
func New(opts ...Option) *Lock {
	l := &Lock{entries: make(map[domain.SessionKey]*entry), maxQueue: DefaultQueue}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire blocks until the caller owns key. The returned release func is
// safe to call more than once; callers should defer it immediately.
// Acquire fails with ErrBusy when the queue is full and with ctx.Err()
// when ctx ends first.
func (l *Lock) Acquire(ctx context.Context, key domain.SessionKey) (func(), error) {
	l.mu.Lock()
	e, held := l.entries[key]
	if !held {
		l.entries[key] = &entry{}
		l.mu.Unlock()
		return l.releaser(key), nil
	}
	if l.maxQueue >= 0 && len(e.waiters) >= l.maxQueue {
		l.mu.Unlock()
		return nil, ErrBusy
	}
	ch := make(chan struct{})
	e.waiters = append(e.waiters, ch)
	l.mu.Unlock()

	select {
	case <-ch:
		return l.releaser(key), nil
	case <-ctx.Done():
	}

	l.mu.Lock()
	if e := l.entries[key]; e != nil {
		if i := slices.Index(e.waiters, ch); i >= 0 {
			e.waiters = slices.Delete(e.waiters, i, i+1)
			l.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	l.mu.Unlock()

	// Ownership was handed over while ctx ended; pass it on.
	l.Release(key)
	return nil, ctx.Err()
}

// Release hands key to the next waiter, or clears it when none is waiting.
func (l *Lock) Release(key domain.SessionKey) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		return
	}
	if len(e.waiters) == 0 {
		delete(l.entries, key)
		return
	}
	next := e.waiters[0]
	e.waiters = e.waiters[1:]
	close(next)
}

// Waiting returns the number of callers queued behind the holder of key.
func (l *Lock) Waiting(key domain.SessionKey) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[key]; ok {
		return len(e.waiters)
	}
	return 0
}

// Len returns the number of held keys.
func (l *Lock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Lock) releaser(key domain.SessionKey) func() {
	var once sync.Once
	return func() { once.Do(func() { l.Release(key) }) }
}
