package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/spetersoncode/tally/internal/domain"
	"github.com/spetersoncode/tally/internal/i18n"
)

// SendFunc delivers one outbound message to the conversation.
type SendFunc func(ctx context.Context, text string) error

// Coordinator runs the primary and secondary assistants for one message.
type Coordinator struct {
	primary   Assistant
	secondary Assistant
	catalog   *i18n.Catalog
	logger    *slog.Logger
}

// NewCoordinator creates a Coordinator. A nil secondary disables advisory
// replies.
func NewCoordinator(primary, secondary Assistant, c *i18n.Catalog, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{primary: primary, secondary: secondary, catalog: c, logger: logger}
}

// Dispatch classifies msg and answers it. When the intent suits both
// assistants they run concurrently. A failure of one never suppresses the
// other. The primary sends as soon as it is done; the secondary's note is
// sent after it, as a separate message. The primary is skipped for
// advisory questions.
func (c *Coordinator) Dispatch(ctx context.Context, msg domain.InboundMessage, prefs domain.Preferences, send SendFunc) error {
	intent := Classify(msg)
	req := Request{Message: msg, Prefs: prefs, Intent: intent}
	logger := c.logger.With("intent", intent, "channel", msg.Channel, "source", msg.SourceID)

	runPrimary := intent != IntentAdvisory
	runSecondary := c.secondary != nil && intent.WantsBoth()
	if !runPrimary && !runSecondary {
		// Advisory question with the advisor disabled.
		runPrimary = true
		req.Intent = IntentOther
	}

	var sendErr error

	// Neither task returns an error to the group; each handles its own so
	// one failing cannot cancel the other.
	var g errgroup.Group

	if runPrimary {
		g.Go(func() error {
			reply, err := respond(ctx, c.primary, req)
			if err != nil {
				logger.Warn("primary assistant failed", "error", err)
				reply = Reply{Text: c.catalog.T(prefs.Language, i18n.ErrorGeneric)}
			}
			if reply.Text == "" {
				return nil
			}
			sendErr = safeSend(ctx, send, reply.Text)
			return nil
		})
	}

	var secondaryText string
	if runSecondary {
		g.Go(func() error {
			reply, err := respond(ctx, c.secondary, req)
			if err != nil {
				logger.Warn("secondary assistant failed", "error", err)
				return nil
			}
			secondaryText = reply.Text
			return nil
		})
	}

	_ = g.Wait()

	// The primary has sent by now, so the note always comes second.
	if !IsSilent(secondaryText) {
		if err := send(ctx, secondaryText); err != nil {
			sendErr = errors.Join(sendErr, err)
		}
	}
	return sendErr
}

// Advise runs the secondary assistant once for a transaction the workflow
// just recorded and sends its note unless it is silent.
func (c *Coordinator) Advise(ctx context.Context, msg domain.InboundMessage, prefs domain.Preferences, tx domain.ParsedTransaction, created domain.CreatedTransaction, send SendFunc) error {
	if c.secondary == nil {
		return nil
	}
	reply, err := respond(ctx, c.secondary, Request{
		Message:     msg,
		Prefs:       prefs,
		Intent:      IntentTransaction,
		Created:     &created,
		Transaction: &tx,
	})
	if err != nil {
		c.logger.Warn("advisory pass failed", "error", err)
		return nil
	}
	if IsSilent(reply.Text) {
		return nil
	}
	return send(ctx, reply.Text)
}

// respond calls a.Respond, turning a panic into an error so it stays
// inside the failing assistant.
func respond(ctx context.Context, a Assistant, req Request) (reply Reply, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("assistant: %s panicked: %v", a.Name(), p)
		}
	}()
	return a.Respond(ctx, req)
}

// safeSend calls send, turning a panic into an error so a broken channel
// cannot take down the process from inside the errgroup.
func safeSend(ctx context.Context, send SendFunc, text string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("assistant: send panicked: %v", p)
		}
	}()
	return send(ctx, text)
}
