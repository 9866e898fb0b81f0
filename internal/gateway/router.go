package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/spetersoncode/tally/internal/assistant"
	"github.com/spetersoncode/tally/internal/channel"
	"github.com/spetersoncode/tally/internal/domain"
	"github.com/spetersoncode/tally/internal/i18n"
	"github.com/spetersoncode/tally/internal/ledger"
	"github.com/spetersoncode/tally/internal/ocr"
	"github.com/spetersoncode/tally/internal/parse"
	"github.com/spetersoncode/tally/internal/session"
	"github.com/spetersoncode/tally/internal/suspend"
	"github.com/spetersoncode/tally/workflow"
)

const (
	// DefaultStepTimeout bounds each collaborator-backed step.
	DefaultStepTimeout = 30 * time.Second
	// DefaultAdviseTimeout bounds the background advisory pass.
	DefaultAdviseTimeout = time.Minute
	// DefaultBotName is the group handle used when none is configured.
	DefaultBotName = "tally"
	// DefaultDispatchTimeout bounds one assistant dispatch while the
	// session is held.
	DefaultDispatchTimeout = time.Minute
)

// Preferences resolves a sender's settings.
type Preferences interface {
	Get(ctx context.Context, lctx domain.LedgerContext) domain.Preferences
}

// Dispatcher answers messages the workflow does not handle.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg domain.InboundMessage, prefs domain.Preferences, send assistant.SendFunc) error
	Advise(ctx context.Context, msg domain.InboundMessage, prefs domain.Preferences, tx domain.ParsedTransaction, created domain.CreatedTransaction, send assistant.SendFunc) error
}

// Deps are the collaborators of a Router. Workflow may be nil, in which
// case every message goes to the Dispatcher.
type Deps struct {
	Workflow    *TransactionWorkflow
	Dispatcher  Dispatcher
	Lock        *session.Lock
	Suspended   *suspend.Store[*Snapshot]
	Preferences Preferences
	Parser      *parse.Parser
	Catalog     *i18n.Catalog
	Sender      channel.Sender
}

// Option configures a Router.
type Option func(*Router)

// WithPolicy sets the group activation policy.
func WithPolicy(p Policy) Option {
	return func(r *Router) { r.policy = p }
}

// WithBotName sets the handle that activates the bot in groups. A blank
// name keeps DefaultBotName.
func WithBotName(name string) Option {
	return func(r *Router) {
		if name = strings.TrimSpace(name); name != "" {
			r.botName = name
		}
	}
}

// WithStepTimeout bounds each workflow step.
func WithStepTimeout(d time.Duration) Option {
	return func(r *Router) { r.stepTimeout = d }
}

// WithAdviseTimeout bounds the background advisory pass.
func WithAdviseTimeout(d time.Duration) Option {
	return func(r *Router) { r.adviseTimeout = d }
}

// WithDispatchTimeout bounds each assistant dispatch. Non-positive values
// keep DefaultDispatchTimeout.
func WithDispatchTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.dispatchTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// Router processes inbound messages one conversation at a time.
type Router struct {
	deps Deps

	policy          Policy
	botName         string
	stepTimeout     time.Duration
	adviseTimeout   time.Duration
	dispatchTimeout time.Duration
	logger          *slog.Logger

	background sync.WaitGroup
}

// NewRouter creates a Router.
func NewRouter(d Deps, opts ...Option) (*Router, error) {
	switch {
	case d.Dispatcher == nil:
		return nil, errors.New("gateway: dispatcher is required")
	case d.Lock == nil, d.Suspended == nil, d.Preferences == nil:
		return nil, errors.New("gateway: lock, suspended store and preferences are required")
	case d.Parser == nil, d.Catalog == nil, d.Sender == nil:
		return nil, errors.New("gateway: parser, catalog and sender are required")
	}
	r := &Router{
		deps:            d,
		policy:          PolicyMention,
		botName:         DefaultBotName,
		stepTimeout:     DefaultStepTimeout,
		adviseTimeout:   DefaultAdviseTimeout,
		dispatchTimeout: DefaultDispatchTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r, nil
}

// Handle processes msg and sends replies through the router's sender.
func (r *Router) Handle(ctx context.Context, msg domain.InboundMessage) error {
	return r.HandleWith(ctx, msg, r.deps.Sender)
}

// HandleWith processes msg and sends replies through out. Messages that do
// not activate the bot are dropped. Processing for one session never
// overlaps; the session is released even if a collaborator panics.
func (r *Router) HandleWith(ctx context.Context, msg domain.InboundMessage, out channel.Sender) (err error) {
	if !Activates(msg, r.policy, r.botName) {
		r.logger.Debug("message ignored", "channel", msg.Channel, "source", msg.SourceID)
		return nil
	}
	if msg.IsGroup {
		msg.Text = StripMention(msg.Text, r.botName)
	}

	key := SessionKeyOf(msg)
	logger := r.logger.With("session", key, "sender", msg.SenderID)
	to := channel.TargetOf(msg)
	send := func(ctx context.Context, text string) error {
		return out.Send(ctx, to, text)
	}

	release, err := r.deps.Lock.Acquire(ctx, key)
	if errors.Is(err, session.ErrBusy) {
		logger.Info("session busy, message dropped")
		prefs := r.deps.Preferences.Get(ctx, msg.Context())
		return send(ctx, r.deps.Catalog.T(prefs.Language, i18n.ReplyBusy))
	}
	if err != nil {
		return fmt.Errorf("gateway: acquire session: %w", err)
	}
	defer release()

	prefs := domain.Preferences{}
	defer func() {
		if p := recover(); p != nil {
			logger.Error("message handling panicked", "panic", p, "stack", string(debug.Stack()))
			err = errors.Join(fmt.Errorf("gateway: panic: %v", p), send(ctx, r.deps.Catalog.T(prefs.Language, i18n.ErrorGeneric)))
		}
	}()

	prefs = r.deps.Preferences.Get(ctx, msg.Context())
	return r.process(ctx, msg, prefs, key, send, logger)
}

func (r *Router) process(ctx context.Context, msg domain.InboundMessage, prefs domain.Preferences, key domain.SessionKey, send assistant.SendFunc, logger *slog.Logger) error {
	_, pending := r.deps.Suspended.Get(key)
	kind := Classify(msg, pending)
	logger = logger.With("kind", kind)

	switch kind {
	case KindNone:
		return nil

	case KindResume:
		if r.deps.Catalog.IsCancel(msg.Text) {
			r.deps.Suspended.Remove(key)
			logger.Debug("clarification cancelled")
			return send(ctx, r.deps.Catalog.T(prefs.Language, i18n.ReplyCancelled))
		}
		cont, ok := r.deps.Suspended.Take(key)
		if !ok {
			// Expired between Get and Take.
			return r.start(ctx, msg, prefs, KindText, key, send, logger)
		}
		if r.deps.Workflow == nil || cont.Snapshot == nil {
			return r.dispatch(ctx, msg, prefs, send, logger)
		}
		data := r.deps.Parser.ExtractResume(msg.Text)
		logger.Debug("resuming run", "run_id", cont.RunID, "step", cont.StepID)
		res := r.deps.Workflow.Resume(ctx, cont.Snapshot, data, r.runOptions(logger)...)
		return r.finish(ctx, msg, prefs, key, res, send, logger)

	case KindImage:
		if pending {
			r.deps.Suspended.Remove(key)
			logger.Debug("pending clarification replaced by photo")
		}
	}
	return r.start(ctx, msg, prefs, kind, key, send, logger)
}

// start runs the workflow for a new transaction message. Other messages,
// and all messages when no workflow is configured, go to the dispatcher.
func (r *Router) start(ctx context.Context, msg domain.InboundMessage, prefs domain.Preferences, kind Kind, key domain.SessionKey, send assistant.SendFunc, logger *slog.Logger) error {
	if r.deps.Workflow == nil || assistant.Classify(msg) != assistant.IntentTransaction {
		return r.dispatch(ctx, msg, prefs, send, logger)
	}
	res := r.deps.Workflow.Run(ctx, Input{Message: msg, Prefs: prefs, Kind: kind}, nil, r.runOptions(logger)...)
	return r.finish(ctx, msg, prefs, key, res, send, logger)
}

func (r *Router) runOptions(logger *slog.Logger) []workflow.Option {
	return []workflow.Option{
		workflow.WithStepTimeout(r.stepTimeout),
		workflow.WithLogger(logger),
	}
}

// finish acts on a workflow result.
func (r *Router) finish(ctx context.Context, msg domain.InboundMessage, prefs domain.Preferences, key domain.SessionKey, res *workflow.Result[Input, RunState], send assistant.SendFunc, logger *slog.Logger) error {
	logger = logger.With("run_id", res.RunID)

	switch res.Status {
	case workflow.StatusCompleted:
		logger.Info("transaction recorded", "transaction_id", res.State.TransactionID)
		if err := send(ctx, res.State.Response); err != nil {
			return err
		}
		if res.State.Created != nil {
			r.advise(ctx, msg, prefs, res.State.Transaction, *res.State.Created, send, logger)
		}
		return nil

	case workflow.StatusSuspended:
		prompt, _ := res.Suspension.Payload.(Prompt)
		r.deps.Suspended.Put(key, suspend.Continuation[*Snapshot]{
			RunID:    res.RunID,
			StepID:   res.Suspension.StepID,
			Prompt:   prompt.Text,
			Missing:  prompt.Missing,
			Snapshot: res.Snapshot(),
		})
		logger.Debug("awaiting clarification", "step", res.Suspension.StepID, "missing", prompt.Missing)
		return send(ctx, prompt.Text)

	default:
		if errors.Is(res.Err, ocr.ErrFallback) {
			logger.Debug("photo is not a receipt, handing to assistants")
			return r.dispatch(ctx, msg, prefs, send, logger)
		}
		logger.Warn("transaction run failed", "error", res.Err)
		return send(ctx, r.deps.Catalog.T(prefs.Language, failureKey(res.Err)))
	}
}

// dispatch hands msg to the assistants under the dispatch timeout. A
// dispatch that runs out of time is answered with the timeout reply.
func (r *Router) dispatch(ctx context.Context, msg domain.InboundMessage, prefs domain.Preferences, send assistant.SendFunc, logger *slog.Logger) error {
	dctx, cancel := context.WithTimeout(ctx, r.dispatchTimeout)
	defer cancel()
	err := r.deps.Dispatcher.Dispatch(dctx, msg, prefs, send)
	if err != nil && ctx.Err() == nil && errors.Is(dctx.Err(), context.DeadlineExceeded) {
		logger.Warn("assistants timed out", "timeout", r.dispatchTimeout, "error", err)
		return send(ctx, r.deps.Catalog.T(prefs.Language, i18n.ErrorTimeout))
	}
	return err
}

// failureKey picks the user-facing message for a failed run. Error detail
// stays in the logs.
func failureKey(err error) string {
	switch {
	case errors.Is(err, ocr.ErrServiceBusy):
		return i18n.ErrorOCRBusy
	case errors.Is(err, workflow.ErrStepTimeout), errors.Is(err, context.DeadlineExceeded):
		return i18n.ErrorTimeout
	case ledger.IsError(err):
		return i18n.ErrorLedger
	default:
		return i18n.ErrorGeneric
	}
}

// advise runs the advisory pass in the background so the session is
// released as soon as the confirmation is out.
func (r *Router) advise(ctx context.Context, msg domain.InboundMessage, prefs domain.Preferences, tx domain.ParsedTransaction, created domain.CreatedTransaction, send assistant.SendFunc, logger *slog.Logger) {
	r.background.Add(1)
	go func() {
		defer r.background.Done()
		defer func() {
			if p := recover(); p != nil {
				logger.Error("advisory pass panicked", "panic", p)
			}
		}()

		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.adviseTimeout)
		defer cancel()
		if err := r.deps.Dispatcher.Advise(actx, msg, prefs, tx, created, send); err != nil {
			logger.Warn("advisory reply not delivered", "error", err)
		}
	}()
}

// Wait blocks until background advisory passes finish.
func (r *Router) Wait() {
	r.background.Wait()
}
