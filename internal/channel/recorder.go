package channel

import (
	"context"
	"slices"
	"sync"
)

// Message is one reply captured by a Recorder.
type Message struct {
	Target Target
	Text   string
}

// Recorder is a Sender that keeps replies in memory. Callers that answer
// synchronously, such as the MCP tool and the Lambda handler, read them
// back after the router returns.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Send records text.
func (r *Recorder) Send(_ context.Context, to Target, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Target: to, Text: text})
	return nil
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.messages)
}

// Texts returns the recorded texts for one conversation, in send order.
func (r *Recorder) Texts(to Target) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.messages {
		if m.Target.Channel == to.Channel && m.Target.SourceID == to.SourceID {
			out = append(out, m.Text)
		}
	}
	return out
}

// Drain returns and removes the recorded messages for one conversation.
func (r *Recorder) Drain(to Target) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	kept := r.messages[:0]
	for _, m := range r.messages {
		if m.Target.Channel == to.Channel && m.Target.SourceID == to.SourceID {
			out = append(out, m.Text)
			continue
		}
		kept = append(kept, m)
	}
	r.messages = kept
	return out
}

var _ Sender = (*Recorder)(nil)
