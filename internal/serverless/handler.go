// Package serverless adapts API Gateway proxy requests to the router. A Lambda
// invocation ends when the response is returned, so messages are processed
// before responding and the replies are included in the body.
package serverless

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"github.com/spetersoncode/tally/internal/channel"
	"github.com/spetersoncode/tally/internal/domain"
)

const correlationHeader = "X-Correlation-Id"

// Router processes one inbound message, sending replies through out.
// Wait blocks until background work such as advisory notes finishes.
type Router interface {
	HandleWith(ctx context.Context, msg domain.InboundMessage, out channel.Sender) error
	Wait()
}

// Handler handles webhook invocations.
type Handler struct {
	router  Router
	token   string
	forward channel.Sender
	logger  *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithToken requires requests to carry token as a bearer token.
func WithToken(token string) Option {
	return func(h *Handler) { h.token = token }
}

// WithForward also delivers each reply through s, for channels that
// receive replies by callback. Channels s does not know are skipped.
func WithForward(s channel.Sender) Option {
	return func(h *Handler) { h.forward = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// NewHandler creates a Handler.
func NewHandler(r Router, opts ...Option) (*Handler, error) {
	if r == nil {
		return nil, errors.New("serverless: router must not be nil")
	}
	h := &Handler{router: r}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h, nil
}

type webhookResponse struct {
	Replies []string `json:"replies"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handle processes a POST /webhook/{channel} request.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	start := time.Now()
	correlationID := header(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := h.logger.With("correlation_id", correlationID)

	if req.HTTPMethod != "" && req.HTTPMethod != http.MethodPost {
		return respond(http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"}, correlationID), nil
	}
	if !h.authorized(req.Headers) {
		return respond(http.StatusUnauthorized, errorResponse{Error: "unauthorized"}, correlationID), nil
	}

	name := req.PathParameters["channel"]
	if name == "" {
		name = path.Base(strings.TrimRight(req.Path, "/"))
	}
	if name == "" || name == "." || name == "/" {
		return respond(http.StatusBadRequest, errorResponse{Error: "channel is required"}, correlationID), nil
	}

	body := req.Body
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return respond(http.StatusBadRequest, errorResponse{Error: "invalid request body"}, correlationID), nil
		}
		body = string(decoded)
	}

	var msg domain.InboundMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return respond(http.StatusBadRequest, errorResponse{Error: "invalid request body"}, correlationID), nil
	}
	msg.Channel = name
	if msg.SourceID == "" || msg.SenderID == "" {
		return respond(http.StatusBadRequest, errorResponse{Error: "sourceId and senderId are required"}, correlationID), nil
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}

	out := channel.NewRecorder()
	if err := h.router.HandleWith(ctx, msg, out); err != nil {
		log.Error("message handling failed", "channel", name, "error", err)
		return respond(http.StatusInternalServerError, errorResponse{Error: "internal error"}, correlationID), nil
	}
	h.router.Wait()

	to := channel.TargetOf(msg)
	replies := out.Drain(to)
	if h.forward != nil {
		for _, text := range replies {
			err := h.forward.Send(ctx, to, text)
			if errors.Is(err, channel.ErrUnknownChannel) {
				break
			}
			if err != nil {
				log.Warn("reply delivery failed", "channel", name, "error", err)
			}
		}
	}

	log.Info("webhook handled",
		"channel", name,
		"replies", len(replies),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if replies == nil {
		replies = []string{}
	}
	return respond(http.StatusOK, webhookResponse{Replies: replies}, correlationID), nil
}

func (h *Handler) authorized(headers map[string]string) bool {
	if h.token == "" {
		return true
	}
	token, ok := strings.CutPrefix(header(headers, "Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) == 1
}

// header looks up a header case-insensitively; API Gateway passes them
// through as sent.
func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func respond(status int, v any, correlationID string) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status, body = http.StatusInternalServerError, []byte(`{"error":"internal error"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(body),
	}
}
