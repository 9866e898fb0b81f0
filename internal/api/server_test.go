package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spetersoncode/tally/internal/channel"
	"github.com/spetersoncode/tally/internal/channel/agui"
	"github.com/spetersoncode/tally/internal/domain"
	"github.com/spetersoncode/tally/internal/logging"
)

type fakeRouter struct {
	mu      sync.Mutex
	handled []domain.InboundMessage
	replies []string
	block   chan struct{}
}

func (f *fakeRouter) Handle(ctx context.Context, msg domain.InboundMessage) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handled = append(f.handled, msg)
	return nil
}

func (f *fakeRouter) HandleWith(ctx context.Context, msg domain.InboundMessage, out channel.Sender) error {
	for _, r := range f.replies {
		if err := out.Send(ctx, channel.TargetOf(msg), r); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeRouter) messages() []domain.InboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.InboundMessage(nil), f.handled...)
}

func newServer(t *testing.T, mutate func(*Config)) (*Server, *fakeRouter) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.WebhookToken = "hook-secret"
	if mutate != nil {
		mutate(&cfg)
	}
	router := &fakeRouter{}
	return New(cfg, router, logging.NewNop()), router
}

func webhookRequest(t *testing.T, channelName, token string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, "/webhook/"+channelName, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestHealth(t *testing.T) {
	s, _ := newServer(t, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestWebhookAcceptsAndHandsOff(t *testing.T) {
	s, router := newServer(t, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, webhookRequest(t, "line", "hook-secret", map[string]any{
		"channel":  "spoofed",
		"sourceId": "g1",
		"senderId": "u1",
		"text":     "coffee 65",
		"isGroup":  true,
	}))
	require.Equal(t, http.StatusAccepted, rec.Code)

	s.Wait()
	got := router.messages()
	require.Len(t, got, 1)
	assert.Equal(t, "line", got[0].Channel)
	assert.Equal(t, "g1", got[0].SourceID)
	assert.Equal(t, "coffee 65", got[0].Text)
	assert.True(t, got[0].IsGroup)
	assert.False(t, got[0].ReceivedAt.IsZero())
}

func TestWebhookRejects(t *testing.T) {
	valid := map[string]any{"sourceId": "g1", "senderId": "u1", "text": "coffee 65"}

	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		status int
	}{
		{
			name:   "missing token",
			req:    func(t *testing.T) *http.Request { return webhookRequest(t, "line", "", valid) },
			status: http.StatusUnauthorized,
		},
		{
			name:   "wrong token",
			req:    func(t *testing.T) *http.Request { return webhookRequest(t, "line", "guess", valid) },
			status: http.StatusUnauthorized,
		},
		{
			name: "bad json",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/webhook/line", strings.NewReader("{"))
				req.Header.Set("Authorization", "Bearer hook-secret")
				return req
			},
			status: http.StatusBadRequest,
		},
		{
			name: "missing source",
			req: func(t *testing.T) *http.Request {
				return webhookRequest(t, "line", "hook-secret", map[string]any{"senderId": "u1", "text": "hi"})
			},
			status: http.StatusBadRequest,
		},
		{
			name: "empty message",
			req: func(t *testing.T) *http.Request {
				return webhookRequest(t, "line", "hook-secret", map[string]any{"sourceId": "g1", "senderId": "u1"})
			},
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown channel",
			req:    func(t *testing.T) *http.Request { return webhookRequest(t, "fax", "hook-secret", valid) },
			status: http.StatusNotFound,
		},
		{
			name: "wrong method",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodGet, "/webhook/line", nil)
			},
			status: http.StatusMethodNotAllowed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, router := newServer(t, func(c *Config) { c.Channels = []string{"line", "telegram"} })

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, tt.req(t))
			s.Wait()

			assert.Equal(t, tt.status, rec.Code)
			assert.Empty(t, router.messages())
		})
	}
}

func TestWebhookWithoutTokenConfigured(t *testing.T) {
	s, router := newServer(t, func(c *Config) { c.WebhookToken = "" })

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, webhookRequest(t, "line", "", map[string]any{
		"sourceId": "u1", "senderId": "u1", "imageRef": "https://img.example.com/r.jpg",
	}))
	s.Wait()

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, router.messages(), 1)
}

func TestChatStreamsAGUIEvents(t *testing.T) {
	s, router := newServer(t, nil)
	router.replies = []string{"Recorded coffee: ฿65 (#tx-1)"}

	text := "coffee 65"
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(agui.RunAgentInput{
		ThreadID: "t1",
		RunID:    "r1",
		Messages: []events.Message{{ID: "m1", Role: agui.RoleUser, Content: &text}},
	}))

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/chat", "application/json", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Contains(t, body.String(), string(events.EventTypeRunStarted))
	assert.Contains(t, body.String(), "Recorded coffee")
	assert.Contains(t, body.String(), string(events.EventTypeRunFinished))
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newServer(t, func(c *Config) { c.CORSOrigins = []string{"https://app.example.com"} })

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestShutdownWaitsForHandOffs(t *testing.T) {
	s, router := newServer(t, nil)
	router.block = make(chan struct{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, webhookRequest(t, "line", "hook-secret", map[string]any{
		"sourceId": "u1", "senderId": "u1", "text": "coffee 65",
	}))
	require.Equal(t, http.StatusAccepted, rec.Code)

	done := make(chan error, 1)
	go func() { done <- s.Shutdown(context.Background()) }()

	select {
	case <-done:
		t.Fatal("shutdown returned before the hand-off finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(router.block)
	require.NoError(t, <-done)
	assert.Len(t, router.messages(), 1)
}

func TestShutdownCancelsStragglers(t *testing.T) {
	s, router := newServer(t, func(c *Config) { c.ShutdownTimeout = 20 * time.Millisecond })
	router.block = make(chan struct{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, webhookRequest(t, "line", "hook-secret", map[string]any{
		"sourceId": "u1", "senderId": "u1", "text": "coffee 65",
	}))

	require.NoError(t, s.Shutdown(context.Background()))
	assert.Empty(t, router.messages())
}
