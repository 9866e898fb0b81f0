package suspend

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spetersoncode/tally/internal/domain"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestPutGetRemove(t *testing.T) {
	clk := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := New[string](WithClock(clk.Now))
	key := domain.SessionKey("line:u1")

	s.Put(key, Continuation[string]{RunID: "r1", StepID: "tx/direct/validate", Snapshot: "snap"})

	c, ok := s.Get(key)
	require.True(t, ok)
	assert.Equal(t, "r1", c.RunID)
	assert.Equal(t, clk.Now(), c.CreatedAt)

	s.Remove(key)
	_, ok = s.Get(key)
	assert.False(t, ok)
}

func TestOneContinuationPerSession(t *testing.T) {
	s := New[int]()
	key := domain.SessionKey("line:u1")
	s.Put(key, Continuation[int]{RunID: "r1"})
	s.Put(key, Continuation[int]{RunID: "r2"})

	c, ok := s.Take(key)
	require.True(t, ok)
	assert.Equal(t, "r2", c.RunID)
	assert.Equal(t, 0, s.Len())
}

func TestNotResumableAfterTTL(t *testing.T) {
	clk := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := New[int](WithClock(clk.Now), WithTTL(5*time.Minute))
	key := domain.SessionKey("line:u1")
	s.Put(key, Continuation[int]{RunID: "r1"})

	clk.Advance(5 * time.Minute)

	_, ok := s.Get(key)
	assert.False(t, ok)
}

func TestReapIsDeterministic(t *testing.T) {
	clk := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := New[int](WithClock(clk.Now))
	s.Put("a", Continuation[int]{})
	s.Put("b", Continuation[int]{})
	clk.Advance(4 * time.Minute)
	s.Put("c", Continuation[int]{})

	assert.Equal(t, 0, s.Reap())
	clk.Advance(time.Minute)
	assert.Equal(t, 2, s.Reap())
	assert.Equal(t, 1, s.Len())
}

func TestStartSchedulesReaper(t *testing.T) {
	clk := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := New[int](WithClock(clk.Now), WithTTL(time.Minute), WithInterval(time.Second))
	s.Put("a", Continuation[int]{})
	clk.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	assert.ErrorIs(t, s.Start(ctx), ErrStarted)

	assert.Eventually(t, func() bool { return s.Len() == 0 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
	s.Stop()
}
