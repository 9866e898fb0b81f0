package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spetersoncode/tally"
	"github.com/spetersoncode/tally/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	mu        sync.Mutex
	responses []mockResponse
	callCount int
	lastOpts  *tally.Options
}

type mockResponse struct {
	content string
	err     error
}

func (m *mockProvider) Chat(ctx context.Context, messages []tally.Message, opts ...tally.Option) (*tally.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastOpts = tally.ApplyOptions(opts...)
	if m.callCount >= len(m.responses) {
		return &tally.Response{Content: "no more responses"}, nil
	}
	resp := m.responses[m.callCount]
	m.callCount++
	if resp.err != nil {
		return nil, resp.err
	}
	return &tally.Response{Content: resp.content}, nil
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func TestErrMissingAPIKey(t *testing.T) {
	err := &ErrMissingAPIKey{Provider: tally.ProviderOpenAI}
	assert.Equal(t, "no API key configured for openai", err.Error())
}

func TestBuildProviderRequiresKey(t *testing.T) {
	for _, p := range []tally.Provider{tally.ProviderAnthropic, tally.ProviderOpenAI, tally.ProviderGoogle} {
		t.Run(p.String(), func(t *testing.T) {
			_, err := buildProvider(context.Background(), Config{Provider: p})
			var missing *ErrMissingAPIKey
			require.ErrorAs(t, err, &missing)
			assert.Equal(t, p, missing.Provider)
		})
	}

	_, err := buildProvider(context.Background(), Config{Provider: "mistral"})
	assert.ErrorContains(t, err, "unsupported provider")
}

func TestChatRetriesTransient(t *testing.T) {
	mock := &mockProvider{responses: []mockResponse{
		{err: tally.NewTransientError("overloaded", 529, nil)},
		{content: "hello"},
	}}
	c := NewWithProvider(mock, fastRetry())

	resp, err := c.Chat(context.Background(), []tally.Message{tally.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, 2, mock.callCount)
}

func TestChatDoesNotRetryPermanent(t *testing.T) {
	mock := &mockProvider{responses: []mockResponse{
		{err: tally.NewPermanentError("bad key", 401, nil)},
		{content: "unreachable"},
	}}
	c := NewWithProvider(mock, fastRetry())

	_, err := c.Chat(context.Background(), nil)
	assert.True(t, tally.IsPermanent(err))
	assert.Equal(t, 1, mock.callCount)
}

func TestProviderConstructedOnce(t *testing.T) {
	var built atomic.Int32
	c := New(Config{Provider: tally.ProviderAnthropic})
	c.newProvider = func(context.Context, Config) (tally.ChatProvider, error) {
		built.Add(1)
		return &mockProvider{}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Chat(context.Background(), nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), built.Load())
}

func TestProviderInitErrorIsSticky(t *testing.T) {
	var built atomic.Int32
	boom := errors.New("boom")
	c := New(Config{Provider: tally.ProviderGoogle})
	c.newProvider = func(context.Context, Config) (tally.ChatProvider, error) {
		built.Add(1)
		return nil, boom
	}

	_, err := c.Chat(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
	_, err = c.Chat(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), built.Load())
}

func TestChatJSON(t *testing.T) {
	type receipt struct {
		Total float64 `json:"total"`
	}

	t.Run("decodes fenced JSON", func(t *testing.T) {
		mock := &mockProvider{responses: []mockResponse{{content: "```json\n{\"total\": 120.5}\n```"}}}
		out, err := ChatJSON[receipt](context.Background(), mock, nil, tally.ResponseSchema{Name: "receipt"})
		require.NoError(t, err)
		assert.Equal(t, 120.5, out.Total)
		require.NotNil(t, mock.lastOpts.ResponseSchema)
		assert.Equal(t, "receipt", mock.lastOpts.ResponseSchema.Name)
	})

	t.Run("invalid JSON is an error", func(t *testing.T) {
		mock := &mockProvider{responses: []mockResponse{{content: "sorry"}}}
		_, err := ChatJSON[receipt](context.Background(), mock, nil, tally.ResponseSchema{Name: "receipt"})
		assert.ErrorContains(t, err, "decode receipt response")
	})
}
