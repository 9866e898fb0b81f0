package agui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spetersoncode/tally/internal/channel"
	"github.com/spetersoncode/tally/internal/domain"
)

type scriptedRouter struct {
	replies []string
	err     error
	got     domain.InboundMessage
	late    channel.Sender
}

func (s *scriptedRouter) HandleWith(ctx context.Context, msg domain.InboundMessage, out channel.Sender) error {
	s.got = msg
	s.late = out
	for _, r := range s.replies {
		if err := out.Send(ctx, channel.TargetOf(msg), r); err != nil {
			return err
		}
	}
	return s.err
}

func runBody(t *testing.T, text string, state any) *bytes.Buffer {
	t.Helper()
	in := RunAgentInput{
		ThreadID: "thread-1",
		RunID:    "run-1",
		Messages: []events.Message{{ID: "m1", Role: RoleUser, Content: &text}},
		State:    state,
	}
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(in))
	return &buf
}

// eventTypes returns the SSE event names in order.
func eventTypes(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			out = append(out, name)
		}
	}
	return out
}

func TestHandlerStreamsReplies(t *testing.T) {
	router := &scriptedRouter{replies: []string{"Recorded coffee: ฿65 (#tx-1)", "Third coffee today."}}
	h := NewHandler(router, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", runBody(t, "coffee 65", map[string]any{"sender_id": "u7", "sender_name": "Dan"}))
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, []string{
		string(events.EventTypeRunStarted),
		string(events.EventTypeTextMessageStart),
		string(events.EventTypeTextMessageContent),
		string(events.EventTypeTextMessageEnd),
		string(events.EventTypeTextMessageStart),
		string(events.EventTypeTextMessageContent),
		string(events.EventTypeTextMessageEnd),
		string(events.EventTypeRunFinished),
	}, eventTypes(rec.Body.String()))
	assert.Contains(t, rec.Body.String(), "Third coffee today.")

	assert.Equal(t, ChannelName, router.got.Channel)
	assert.Equal(t, "thread-1", router.got.SourceID)
	assert.Equal(t, "u7", router.got.SenderID)
	assert.Equal(t, "Dan", router.got.SenderName)
	assert.Equal(t, "coffee 65", router.got.Text)
	assert.False(t, router.got.IsGroup)
}

func TestHandlerReportsRunError(t *testing.T) {
	router := &scriptedRouter{err: errors.New("ledger exploded with secrets")}
	h := NewHandler(router, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", runBody(t, "coffee 65", nil)))

	types := eventTypes(rec.Body.String())
	require.NotEmpty(t, types)
	assert.Equal(t, string(events.EventTypeRunError), types[len(types)-1])
	assert.NotContains(t, rec.Body.String(), "secrets")
}

func TestHandlerRejectsLateReplies(t *testing.T) {
	router := &scriptedRouter{}
	h := NewHandler(router, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", runBody(t, "coffee 65", nil)))

	err := router.late.Send(context.Background(), channel.Target{}, "too late")
	assert.ErrorIs(t, err, ErrStreamClosed)
	assert.NotContains(t, rec.Body.String(), "too late")
}

func TestHandlerValidatesRequest(t *testing.T) {
	h := NewHandler(&scriptedRouter{}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", runBody(t, "  ", nil)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPrepare(t *testing.T) {
	t.Run("uses newest user message", func(t *testing.T) {
		first, reply, second := "65", "What did you spend ฿65 on?", "lunch"
		in := RunAgentInput{
			ThreadID: "t1",
			Messages: []events.Message{
				{ID: "a", Role: RoleUser, Content: &first},
				{ID: "b", Role: RoleAssistant, Content: &reply},
				{ID: "c", Role: RoleUser, Content: &second},
			},
		}
		p, err := in.Prepare()
		require.NoError(t, err)
		assert.Equal(t, "lunch", p.Message.Text)
		assert.Equal(t, "c", p.Message.MessageID)
		assert.Equal(t, "t1", p.Message.SenderID)
		assert.NotEmpty(t, p.RunID)
	})

	t.Run("image without text", func(t *testing.T) {
		in := RunAgentInput{State: map[string]any{"image_ref": "data:image/jpeg;base64,AAAA"}}
		p, err := in.Prepare()
		require.NoError(t, err)
		assert.True(t, p.Message.HasImage())
		assert.NotEmpty(t, p.ThreadID)
	})

	t.Run("nothing to process", func(t *testing.T) {
		in := RunAgentInput{ThreadID: "t1"}
		_, err := in.Prepare()
		assert.ErrorIs(t, err, ErrNoMessages)
	})

	t.Run("bad state", func(t *testing.T) {
		text := "hi"
		in := RunAgentInput{
			Messages: []events.Message{{ID: "a", Role: RoleUser, Content: &text}},
			State:    map[string]any{"sender_id": 42},
		}
		_, err := in.Prepare()
		assert.Error(t, err)
	})
}
