package agui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	"github.com/spetersoncode/tally/internal/channel"
	"github.com/spetersoncode/tally/internal/domain"
)

// ErrStreamClosed is returned when a reply arrives after its run ended.
var ErrStreamClosed = errors.New("agui: stream closed")

// runErrorMessage is sent in RUN_ERROR; details stay in the logs.
const runErrorMessage = "message could not be processed"

// Router processes one inbound message, sending replies through out.
type Router interface {
	HandleWith(ctx context.Context, msg domain.InboundMessage, out channel.Sender) error
}

// Handler handles AG-UI runs over SSE.
type Handler struct {
	router Router
	logger *slog.Logger
}

// NewHandler creates a Handler. A nil logger uses slog.Default.
func NewHandler(r Router, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{router: r, logger: logger}
}

// ServeHTTP runs the message through the router and streams its replies.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method != http.MethodPost {
		h.logger.Warn("method not allowed", "method", r.Method, "path", r.URL.Path)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var input RunAgentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.logger.Warn("invalid request body", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	prepared, err := input.Prepare()
	if err != nil {
		h.logger.Warn("invalid input", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	log := h.logger.With("run_id", prepared.RunID, "thread_id", prepared.ThreadID)

	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Error("streaming not supported")
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s := &stream{w: w, flusher: flusher, mapper: newMapper(prepared.ThreadID, prepared.RunID)}
	defer s.close()

	if err := s.write(s.mapper.RunStarted()); err != nil {
		log.Error("failed to write SSE event", "error", err)
		return
	}

	handleErr := h.router.HandleWith(r.Context(), prepared.Message, s)

	final := s.mapper.RunFinished()
	if handleErr != nil {
		final = s.mapper.RunError()
	}
	if err := s.write(final); err != nil {
		log.Error("failed to write SSE event", "error", err, "event_type", final.Type())
		return
	}

	if handleErr != nil {
		log.Error("run failed",
			"duration_ms", time.Since(start).Milliseconds(),
			"replies", s.replies,
			"error", handleErr,
		)
		return
	}
	log.Info("run completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"replies", s.replies,
	)
}

// stream is the channel.Sender for one run. Replies that arrive after the
// run ended, such as a late advisory note, are rejected.
type stream struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	mapper  *mapper
	closed  bool
	replies int
}

// Send writes text as one assistant message.
func (s *stream) Send(_ context.Context, _ channel.Target, text string) error {
	id := events.GenerateMessageID()
	for _, ev := range s.mapper.Message(id, text) {
		if err := s.write(ev); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.replies++
	s.mu.Unlock()
	return nil
}

func (s *stream) write(ev events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	return writeSSE(s.w, s.flusher, ev)
}

func (s *stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// writeSSE writes an AG-UI event in SSE format.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, ev events.Event) error {
	data, err := ev.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type(), string(data)); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	flusher.Flush()
	return nil
}

// mapper builds the events of one run.
type mapper struct {
	threadID string
	runID    string
}

func newMapper(threadID, runID string) *mapper {
	return &mapper{threadID: threadID, runID: runID}
}

func (m *mapper) RunStarted() events.Event {
	return events.NewRunStartedEvent(m.threadID, m.runID)
}

func (m *mapper) RunFinished() events.Event {
	return events.NewRunFinishedEvent(m.threadID, m.runID)
}

func (m *mapper) RunError() events.Event {
	return events.NewRunErrorEvent(runErrorMessage)
}

// Message returns the start, content and end events of one reply.
func (m *mapper) Message(id, text string) []events.Event {
	return []events.Event{
		events.NewTextMessageStartEvent(id, events.WithRole(RoleAssistant)),
		events.NewTextMessageContentEvent(id, text),
		events.NewTextMessageEndEvent(id),
	}
}

var _ channel.Sender = (*stream)(nil)
