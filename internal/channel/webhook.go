package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spetersoncode/tally"
	"github.com/spetersoncode/tally/internal/retry"
)

// WebhookSender posts replies as JSON to a channel adapter's callback URL.
type WebhookSender struct {
	url        string
	token      string
	httpClient *http.Client
	retry      retry.Config
	logger     *slog.Logger
}

// WebhookOption configures a WebhookSender.
type WebhookOption func(*WebhookSender)

// WithWebhookToken sets the bearer token sent with each callback.
func WithWebhookToken(token string) WebhookOption {
	return func(w *WebhookSender) { w.token = token }
}

// WithWebhookClient sets the HTTP client.
func WithWebhookClient(c *http.Client) WebhookOption {
	return func(w *WebhookSender) { w.httpClient = c }
}

// WithWebhookRetry overrides the retry policy.
func WithWebhookRetry(cfg retry.Config) WebhookOption {
	return func(w *WebhookSender) { w.retry = cfg }
}

// WithWebhookLogger sets the logger.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *WebhookSender) { w.logger = l }
}

// NewWebhookSender creates a sender that posts to url.
func NewWebhookSender(url string, opts ...WebhookOption) *WebhookSender {
	w := &WebhookSender{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry:      retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	w.logger = w.logger.With("callback", url)
	w.retry.OnRetry = func(attempt int, delay time.Duration, err error) {
		w.logger.Warn("callback failed, retrying", "attempt", attempt, "delay", delay, "error", err)
	}
	return w
}

type outbound struct {
	Target
	Text string `json:"text"`
}

// Send posts {channel, sourceId, replyTo, text} to the callback URL,
// retrying transient failures.
func (w *WebhookSender) Send(ctx context.Context, to Target, text string) error {
	body, err := json.Marshal(outbound{Target: to, Text: text})
	if err != nil {
		return fmt.Errorf("channel: marshal reply: %w", err)
	}
	_, err = retry.Do(ctx, w.retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.post(ctx, body)
	})
	if err != nil {
		return fmt.Errorf("channel: send to %s: %w", to.Channel, err)
	}
	return nil
}

func (w *WebhookSender) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return tally.NewPermanentError("create request", 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return tally.NewTransientError("callback request failed", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return tally.NewStatusError(strings.TrimSpace(string(msg)), resp.StatusCode, 0, nil)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

var _ Sender = (*WebhookSender)(nil)
