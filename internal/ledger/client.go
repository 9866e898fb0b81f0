// Package ledger is the REST client for the ledger service that stores
// transactions, members and preferences.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spetersoncode/tally"
	"github.com/spetersoncode/tally/internal/domain"
	"github.com/spetersoncode/tally/internal/retry"
)

// DefaultTimeout bounds each HTTP call.
const DefaultTimeout = 15 * time.Second

// maxErrorBody caps how much of an error response is kept for logs.
const maxErrorBody = 4 << 10

// Error is returned for every failed ledger call.
type Error struct {
	Op         string
	StatusCode int
	Category   tally.ErrorCategory
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ledger: %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("ledger: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsError reports whether err came from the ledger client.
func IsError(err error) bool {
	var le *Error
	return errors.As(err, &le)
}

// Client talks to the ledger REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retry      retry.Config
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithToken sets the bearer token.
func WithToken(token string) Option {
	return func(cl *Client) { cl.token = token }
}

// WithRetry overrides the retry policy used for reads.
func WithRetry(cfg retry.Config) Option {
	return func(cl *Client) { cl.retry = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		retry:      retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.retry.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.logger.Warn("ledger call failed, retrying", "attempt", attempt, "delay", delay, "error", err)
	}
	return c
}

// CreateRequest is the payload of CreateTransaction.
type CreateRequest struct {
	Context     domain.LedgerContext `json:"context"`
	Description string               `json:"description"`
	Amount      float64              `json:"amount"`
	Currency    string               `json:"currency"`
	Category    string               `json:"category,omitempty"`
	Date        string               `json:"date,omitempty"`
	StoreName   string               `json:"storeName,omitempty"`
	Items       []domain.LineItem    `json:"items,omitempty"`
	Payment     *domain.Payment      `json:"payment,omitempty"`
	Splits      []domain.Split       `json:"splits,omitempty"`
}

// NewCreateRequest builds a payload from a completed transaction.
func NewCreateRequest(lctx domain.LedgerContext, tx domain.ParsedTransaction) CreateRequest {
	req := CreateRequest{
		Context:     lctx,
		Description: tx.Description,
		Amount:      tx.Amount,
		Currency:    tx.Currency,
		Category:    tx.Category,
		StoreName:   tx.StoreName,
		Items:       tx.Items,
		Payment:     tx.Payment,
		Splits:      tx.Splits,
	}
	if !tx.Date.IsZero() {
		req.Date = tx.Date.Format(time.DateOnly)
	}
	return req
}

// InitRequest is the payload of InitSource.
type InitRequest struct {
	Context    domain.LedgerContext `json:"context"`
	SenderName string               `json:"senderName,omitempty"`
}

// CreateTransaction records a transaction. It is not retried; the ledger
// is responsible for idempotency.
func (c *Client) CreateTransaction(ctx context.Context, req CreateRequest) (domain.CreatedTransaction, error) {
	var out domain.CreatedTransaction
	err := c.do(ctx, "create transaction", http.MethodPost, "/api/v1/transactions", req, &out)
	return out, err
}

// InitSource registers the conversation and sender if they are new.
func (c *Client) InitSource(ctx context.Context, req InitRequest) (domain.SourceInit, error) {
	var out domain.SourceInit
	err := c.do(ctx, "init source", http.MethodPost, "/api/v1/sources/init", req, &out)
	return out, err
}

// GetMembers lists the members of a group source.
func (c *Client) GetMembers(ctx context.Context, lctx domain.LedgerContext) ([]domain.Member, error) {
	return get[[]domain.Member](ctx, c, "get members", sourcePath(lctx, "members"))
}

// GetPreferences returns the sender's preferences.
func (c *Client) GetPreferences(ctx context.Context, lctx domain.LedgerContext) (domain.Preferences, error) {
	p := fmt.Sprintf("/api/v1/users/%s/%s/preferences", url.PathEscape(lctx.Channel), url.PathEscape(lctx.SenderID))
	return get[domain.Preferences](ctx, c, "get preferences", p)
}

// GetBalances returns the net balance of each member of a source.
func (c *Client) GetBalances(ctx context.Context, lctx domain.LedgerContext) ([]domain.Balance, error) {
	return get[[]domain.Balance](ctx, c, "get balances", sourcePath(lctx, "balances"))
}

// GetSettlements returns the payments that would clear a source's debts.
func (c *Client) GetSettlements(ctx context.Context, lctx domain.LedgerContext) ([]domain.Settlement, error) {
	return get[[]domain.Settlement](ctx, c, "get settlements", sourcePath(lctx, "settlements"))
}

// RecentTransactions returns up to limit of the newest transactions.
func (c *Client) RecentTransactions(ctx context.Context, lctx domain.LedgerContext, limit int) ([]domain.TransactionRecord, error) {
	p := sourcePath(lctx, "transactions") + "?limit=" + strconv.Itoa(limit)
	return get[[]domain.TransactionRecord](ctx, c, "recent transactions", p)
}

func sourcePath(lctx domain.LedgerContext, resource string) string {
	return fmt.Sprintf("/api/v1/sources/%s/%s/%s", url.PathEscape(lctx.Channel), url.PathEscape(lctx.SourceID), resource)
}

// get performs an idempotent read with retries.
func get[T any](ctx context.Context, c *Client, op, path string) (T, error) {
	return retry.Do(ctx, c.retry, func(ctx context.Context) (T, error) {
		var out T
		err := c.do(ctx, op, http.MethodGet, path, nil, &out)
		return out, err
	})
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Category: tally.ErrorPermanent, Err: fmt.Errorf("marshal request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Op: op, Category: tally.ErrorPermanent, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return &Error{Op: op, Category: tally.ErrorPermanent, Err: err}
		}
		return &Error{Op: op, Category: tally.ErrorTransient, Err: tally.NewTransientError("request failed", 0, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		cause := tally.NewStatusError(strings.TrimSpace(string(msg)), resp.StatusCode, retryAfter(resp.Header), nil)
		return &Error{Op: op, StatusCode: resp.StatusCode, Category: cause.Cat, Err: cause}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Category: tally.ErrorPermanent, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
