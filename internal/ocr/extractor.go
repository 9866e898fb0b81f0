// Package ocr reads receipt photos with a vision model.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spetersoncode/tally"
	"github.com/spetersoncode/tally/client"
	"github.com/spetersoncode/tally/internal/domain"
	"github.com/spetersoncode/tally/internal/retry"
)

var (
	// ErrServiceBusy wraps the terminal error after busy retries ran out.
	ErrServiceBusy = errors.New("ocr: service busy")

	// ErrFallback reports an image that is not a receipt. Callers hand the
	// message to the assistants instead.
	ErrFallback = errors.New("ocr: image is not a receipt")
)

const systemPrompt = `You read photos of purchase receipts and return their contents as JSON.
Set isReceipt to false when the photo is not a receipt, and leave the other fields empty.
Use the currency printed on the receipt as an ISO 4217 code, or an empty string if none is shown.
Dates use YYYY-MM-DD. Use 0 for unknown numbers and an empty string for unknown text.
category is one of: food, groceries, transport, shopping, utilities, entertainment, health, travel, other.`

var receiptSchema = tally.SchemaOf[domain.Receipt]().
	Describe("isReceipt", "False when the photo is not a purchase receipt").
	Describe("items.quantity", "Units bought, 1 if not shown").
	Describe("currency", "ISO 4217 code, empty if not shown").
	Describe("date", "Purchase date as YYYY-MM-DD, empty if not shown").
	Describe("payment.cardLast4", "Last four card digits, empty if not shown").
	Response("receipt", "Structured contents of a purchase receipt")

// Extractor turns image references into receipts.
type Extractor struct {
	provider tally.ChatProvider
	retry    retry.Config
	model    string
	logger   *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRetry overrides the busy retry policy.
func WithRetry(cfg retry.Config) Option {
	return func(e *Extractor) { e.retry = cfg }
}

// WithModel selects a vision model.
func WithModel(model string) Option {
	return func(e *Extractor) { e.model = model }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// New creates an Extractor that calls p.
func New(p tally.ChatProvider, opts ...Option) *Extractor {
	e := &Extractor{provider: p, retry: retry.DefaultConfig()}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.retry.OnRetry = func(attempt int, delay time.Duration, err error) {
		e.logger.Warn("receipt extraction busy, retrying", "attempt", attempt, "delay", delay, "error", err)
	}
	return e
}

// Extract reads the receipt at imageRef, which is an http(s) URL, a gs://
// URI or a data URI. A photo that is not a receipt fails with ErrFallback.
func (e *Extractor) Extract(ctx context.Context, imageRef string) (domain.Receipt, error) {
	msgs := []tally.Message{
		tally.SystemMessage(systemPrompt),
		{Role: tally.RoleUser, Parts: []tally.ContentPart{
			tally.NewTextPart("Extract this receipt."),
			imagePart(imageRef),
		}},
	}
	var opts []tally.Option
	if e.model != "" {
		opts = append(opts, tally.WithModel(e.model))
	}

	r, err := retry.Do(ctx, e.retry, func(ctx context.Context) (domain.Receipt, error) {
		return client.ChatJSON[domain.Receipt](ctx, e.provider, msgs, receiptSchema, opts...)
	})
	if err != nil {
		if retry.IsTransient(err) {
			return domain.Receipt{}, fmt.Errorf("%w: %w", ErrServiceBusy, err)
		}
		return domain.Receipt{}, fmt.Errorf("ocr: extract: %w", err)
	}
	if !r.IsReceipt {
		return domain.Receipt{}, ErrFallback
	}
	if r.Payment != nil && *r.Payment == (domain.Payment{}) {
		r.Payment = nil
	}
	return r, nil
}

// imagePart builds a content part from a data URI or a URL.
func imagePart(ref string) tally.ContentPart {
	if rest, ok := strings.CutPrefix(ref, "data:"); ok {
		if mime, data, ok := strings.Cut(rest, ";base64,"); ok {
			return tally.NewImageBase64Part(data, mime)
		}
	}
	return tally.NewImageURLPart(ref)
}
