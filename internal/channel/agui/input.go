// Package agui serves tally's web chat over the AG-UI protocol. Each run
// carries one user message; replies stream back as text message events on
// the same SSE response.
package agui

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	"github.com/spetersoncode/tally/internal/domain"
)

// ChannelName is the channel of messages received through AG-UI.
const ChannelName = "web"

// Role constants matching the AG-UI protocol.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNoMessages is returned when the input carries no user message.
var ErrNoMessages = errors.New("no user message provided")

// RunAgentInput is the AG-UI request for one run.
type RunAgentInput struct {
	ThreadID       string           `json:"thread_id"`
	RunID          string           `json:"run_id"`
	Messages       []events.Message `json:"messages"`
	State          any              `json:"state,omitempty"`
	ForwardedProps any              `json:"forwarded_props,omitempty"`
}

// ChatState is the frontend state tally reads from a run.
type ChatState struct {
	SenderID   string `json:"sender_id,omitempty"`
	SenderName string `json:"sender_name,omitempty"`
	// ImageRef is a URL or data URI of a receipt photo attached to the
	// message.
	ImageRef string `json:"image_ref,omitempty"`
}

// PreparedInput is a validated run ready for the router.
type PreparedInput struct {
	ThreadID string
	RunID    string
	Message  domain.InboundMessage
}

// Prepare validates the input and builds the inbound message from the
// newest user message. Missing thread and run ids are generated. The
// thread is the conversation; web chats are always direct.
func (r *RunAgentInput) Prepare() (*PreparedInput, error) {
	state, err := DecodeState[ChatState](r.State)
	if err != nil {
		return nil, err
	}

	var last *events.Message
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			last = &r.Messages[i]
			break
		}
	}
	var text string
	if last != nil && last.Content != nil {
		text = strings.TrimSpace(*last.Content)
	}
	if text == "" && state.ImageRef == "" {
		return nil, ErrNoMessages
	}

	threadID := r.ThreadID
	if threadID == "" {
		threadID = events.GenerateThreadID()
	}
	runID := r.RunID
	if runID == "" {
		runID = events.GenerateRunID()
	}
	sender := state.SenderID
	if sender == "" {
		sender = threadID
	}

	msg := domain.InboundMessage{
		Channel:    ChannelName,
		SourceID:   threadID,
		SenderID:   sender,
		SenderName: state.SenderName,
		Text:       text,
		ImageRef:   state.ImageRef,
		ReceivedAt: time.Now(),
	}
	if last != nil {
		msg.MessageID = last.ID
	}
	return &PreparedInput{ThreadID: threadID, RunID: runID, Message: msg}, nil
}

// DecodeState decodes raw frontend state into T. A nil state yields the
// zero value.
func DecodeState[T any](state any) (T, error) {
	var result T
	if state == nil {
		return result, nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, err
	}
	return result, nil
}
