// Package channel delivers outbound replies to the chat surfaces tally
// listens on.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spetersoncode/tally/internal/domain"
)

// ErrUnknownChannel is returned when no sender is registered for a target.
var ErrUnknownChannel = errors.New("channel: unknown channel")

// Target addresses one conversation on one channel.
type Target struct {
	Channel  string `json:"channel"`
	SourceID string `json:"sourceId"`
	// ReplyTo is the inbound message being answered, if the channel
	// supports threaded replies.
	ReplyTo string `json:"replyTo,omitempty"`
}

// TargetOf returns the reply target for msg.
func TargetOf(msg domain.InboundMessage) Target {
	return Target{Channel: msg.Channel, SourceID: msg.SourceID, ReplyTo: msg.MessageID}
}

// Sender delivers a text message to a conversation.
type Sender interface {
	Send(ctx context.Context, to Target, text string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, to Target, text string) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, to Target, text string) error {
	return f(ctx, to, text)
}

// Registry dispatches sends to the sender registered for the target's
// channel.
type Registry struct {
	mu      sync.RWMutex
	senders map[string]Sender
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{senders: make(map[string]Sender)}
}

// Register binds name to s, replacing any previous sender.
func (r *Registry) Register(name string, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[name] = s
}

// Unregister removes the sender for name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.senders, name)
}

// Lookup returns the sender for name.
func (r *Registry) Lookup(name string) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.senders[name]
	return s, ok
}

// Send delivers text through the sender registered for to.Channel.
func (r *Registry) Send(ctx context.Context, to Target, text string) error {
	s, ok := r.Lookup(to.Channel)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, to.Channel)
	}
	return s.Send(ctx, to, text)
}

var _ Sender = (*Registry)(nil)
